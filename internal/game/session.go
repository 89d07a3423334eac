package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Corleone-Yang/Sekai-Take-Home/internal/log"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/models"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/service/story"
)

const (
	personaImportance      = 10
	relationshipImportance = 8
)

// SeedMemories builds the initial long-term memory for every character of a
// story: background, personality and one relationship entry per other
// character.
func SeedMemories(sessionID string, chars []models.Character, newID func() string, now time.Time) []models.LongTermMemory {
	var out []models.LongTermMemory
	add := func(characterID, content string, category models.MemoryCategory, importance int) {
		out = append(out, models.LongTermMemory{
			ID:          newID(),
			SessionID:   sessionID,
			CharacterID: characterID,
			Content:     content,
			Category:    category,
			Importance:  importance,
			CreatedAt:   now,
		})
	}
	for _, c := range chars {
		add(c.ID, c.Background, models.CategoryBackground, personaImportance)
		add(c.ID, c.Character, models.CategoryPersonality, personaImportance)
		for _, other := range chars {
			if other.ID == c.ID {
				continue
			}
			add(c.ID, fmt.Sprintf(relationshipFormat, other.Name), models.CategoryRelationship, relationshipImportance)
		}
	}
	return out
}

// InitializeSession seeds long-term memory for all characters of storyID.
// It is a no-op when the session already has long-term memory, so calling it
// twice never duplicates entries.
func (o *Orchestrator) InitializeSession(ctx context.Context, storyID, sessionID string) error {
	has, err := o.store.HasLongTerm(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("check session memory: %w", err)
	}
	if has {
		log.FromCtx(ctx).Debug().Str("session_id", sessionID).Msg("session memory already initialized")
		return nil
	}

	if _, err := o.directory.GetStory(ctx, storyID); err != nil {
		if errors.Is(err, story.ErrNotFound) {
			return ErrStoryNotFound
		}
		return fmt.Errorf("load story: %w", err)
	}
	chars, err := o.directory.ListCharacters(ctx, storyID)
	if err != nil {
		return fmt.Errorf("load characters: %w", err)
	}
	entries := SeedMemories(sessionID, chars, o.newID, o.now())
	if len(entries) == 0 {
		return nil
	}
	if err := o.store.SeedLongTerm(ctx, sessionID, entries); err != nil {
		return fmt.Errorf("seed session memory: %w", err)
	}
	log.FromCtx(ctx).Info().Str("session_id", sessionID).Int("characters", len(chars)).Msg("session memory initialized")
	return nil
}
