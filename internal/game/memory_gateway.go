package game

import (
	"context"
	"fmt"
	"time"

	"github.com/Corleone-Yang/Sekai-Take-Home/internal/log"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/memory"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/models"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/service/ai"
)

const (
	rawMemoryImportance      = 5
	enrichedMemoryImportance = 7
)

// MemoryGateway turns the newest dialog line into one short-term memory.
type MemoryGateway struct {
	model ai.Generator
	store memory.Store
	now   func() time.Time
	newID func() string
}

// Candidate builds the entry for the latest message in state.Context. The
// model is asked for a summary; on any failure the raw message is kept.
func (g *MemoryGateway) Candidate(ctx context.Context, sessionID string, state *models.CharacterAgentState) (models.ShortTermMemory, bool) {
	if len(state.Context) == 0 {
		return models.ShortTermMemory{}, false
	}
	latest := state.Context[len(state.Context)-1]
	entry := models.ShortTermMemory{
		ID:          g.newID(),
		SessionID:   sessionID,
		CharacterID: state.CharacterID,
		Content:     latest.Content,
		// continue from the stored tail so numbers never repeat across turns
		TurnNumber: state.LastTurn() + len(state.Context),
		Importance: rawMemoryImportance,
		CreatedAt:  g.now(),
	}

	summary, err := g.model.Generate(ctx, extractionPrompt(latest.Content))
	if err != nil {
		log.FromCtx(ctx).Warn().Err(err).
			Str("session_id", sessionID).
			Str("character_id", state.CharacterID).
			Str("stage", stageMemoryUpdate.String()).
			Msg("memory enrichment failed, keeping raw message")
		return entry, true
	}
	entry.Content = summary
	entry.Importance = enrichedMemoryImportance
	return entry, true
}

// Update appends the candidate to the store and, once stored, to state.
func (g *MemoryGateway) Update(ctx context.Context, sessionID string, state *models.CharacterAgentState) error {
	entry, ok := g.Candidate(ctx, sessionID, state)
	if !ok {
		return nil
	}
	if err := g.store.AppendShortTerm(ctx, sessionID, state.CharacterID, entry); err != nil {
		return fmt.Errorf("append memory for %s: %w", state.CharacterID, err)
	}
	state.ShortTerm = append(state.ShortTerm, entry)
	return nil
}
