package story

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Corleone-Yang/Sekai-Take-Home/internal/models"
)

// ListCharacters returns a story's characters in their declared order.
func (s *Service) ListCharacters(ctx context.Context, storyID string) ([]models.Character, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, story_id, name, personality, background, position, created_at
		FROM characters WHERE story_id = ? ORDER BY position ASC`,
		storyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer rows.Close()

	var chars []models.Character
	for rows.Next() {
		var c models.Character
		if err := rows.Scan(&c.ID, &c.StoryID, &c.Name, &c.Character, &c.Background, &c.Position, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan character: %w", err)
		}
		chars = append(chars, c)
	}
	return chars, rows.Err()
}

func (s *Service) GetCharacter(ctx context.Context, characterID string) (*models.Character, error) {
	var c models.Character
	err := s.db.QueryRowContext(ctx,
		`SELECT id, story_id, name, personality, background, position, created_at FROM characters WHERE id = ?`,
		characterID,
	).Scan(&c.ID, &c.StoryID, &c.Name, &c.Character, &c.Background, &c.Position, &c.CreatedAt)
	if err != nil {
		if err = notFound(err); errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get character: %w", err)
	}
	return &c, nil
}

// UpdateCharacter rewrites a character's persona. Empty fields keep their
// current value.
func (s *Service) UpdateCharacter(ctx context.Context, characterID string, in NewCharacter) (*models.Character, error) {
	current, err := s.GetCharacter(ctx, characterID)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		current.Name = name
	}
	if in.Character != "" {
		current.Character = in.Character
	}
	if in.Background != "" {
		current.Background = in.Background
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE characters SET name = ?, personality = ?, background = ? WHERE id = ?`,
		current.Name, current.Character, current.Background, characterID,
	); err != nil {
		return nil, fmt.Errorf("update character: %w", err)
	}
	return current, nil
}
