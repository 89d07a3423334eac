package story

import (
	"context"
	"errors"
	"fmt"

	"github.com/Corleone-Yang/Sekai-Take-Home/internal/models"
)

// ErrCharacterNotInStory is returned when the chosen player character belongs
// to a different story.
var ErrCharacterNotInStory = errors.New("character does not belong to story")

// CreateSession starts a play-through with characterID as the player's avatar.
func (s *Service) CreateSession(ctx context.Context, storyID, characterID, userID string) (*models.GameSession, error) {
	if storyID == "" || characterID == "" {
		return nil, fmt.Errorf("%w: story_id and character_id are required", ErrInvalid)
	}
	if _, err := s.GetStory(ctx, storyID); err != nil {
		return nil, err
	}
	ch, err := s.GetCharacter(ctx, characterID)
	if err != nil {
		return nil, err
	}
	if ch.StoryID != storyID {
		return nil, ErrCharacterNotInStory
	}

	now := s.now()
	se := &models.GameSession{
		ID:                s.newID(),
		StoryID:           storyID,
		PlayerCharacterID: characterID,
		UserID:            userID,
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO game_sessions (id, story_id, player_character_id, user_id, active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		se.ID, se.StoryID, se.PlayerCharacterID, se.UserID, se.Active, now, now,
	); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return se, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (*models.GameSession, error) {
	var se models.GameSession
	err := s.db.QueryRowContext(ctx,
		`SELECT id, story_id, player_character_id, user_id, active, created_at, updated_at FROM game_sessions WHERE id = ?`,
		sessionID,
	).Scan(&se.ID, &se.StoryID, &se.PlayerCharacterID, &se.UserID, &se.Active, &se.CreatedAt, &se.UpdatedAt)
	if err != nil {
		if err = notFound(err); errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &se, nil
}

// EndSession marks the session inactive. Memory is left in place.
func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE game_sessions SET active = ?, updated_at = ? WHERE id = ?`,
		false, s.now(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("session rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchSession bumps updated_at after a completed turn.
func (s *Service) TouchSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE game_sessions SET updated_at = ? WHERE id = ?`, s.now(), sessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}
