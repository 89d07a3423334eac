package story

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Corleone-Yang/Sekai-Take-Home/internal/models"
)

type NewCharacter struct {
	Name       string `json:"name" yaml:"name"`
	Character  string `json:"character" yaml:"character"`
	Background string `json:"background" yaml:"background"`
}

type NewStory struct {
	Title      string         `json:"title" yaml:"title"`
	Background string         `json:"background" yaml:"background"`
	UserID     string         `json:"user_id" yaml:"user_id"`
	Characters []NewCharacter `json:"characters" yaml:"characters"`
}

func (n NewStory) validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalid)
	}
	for i, c := range n.Characters {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("%w: character %d name is required", ErrInvalid, i)
		}
	}
	return nil
}

// CreateStory inserts the story and its characters in one transaction.
// Characters keep the order given, which later drives NPC reply order.
func (s *Service) CreateStory(ctx context.Context, in NewStory) (story *models.Story, chars []models.Character, err error) {
	if err := in.validate(); err != nil {
		return nil, nil, err
	}
	now := s.now()
	story = &models.Story{
		ID:           s.newID(),
		Title:        in.Title,
		Background:   in.Background,
		CharacterNum: len(in.Characters),
		UserID:       in.UserID,
		CreatedAt:    now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO stories (id, title, background, character_num, user_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		story.ID, story.Title, story.Background, story.CharacterNum, story.UserID, now,
	); err != nil {
		return nil, nil, fmt.Errorf("create story: %w", err)
	}
	for i, c := range in.Characters {
		ch := models.Character{
			ID:         s.newID(),
			StoryID:    story.ID,
			Name:       c.Name,
			Character:  c.Character,
			Background: c.Background,
			Position:   i,
			CreatedAt:  now,
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO characters (id, story_id, name, personality, background, position, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ch.ID, ch.StoryID, ch.Name, ch.Character, ch.Background, ch.Position, now,
		); err != nil {
			return nil, nil, fmt.Errorf("create character %s: %w", ch.Name, err)
		}
		chars = append(chars, ch)
	}
	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit story: %w", err)
	}
	return story, chars, nil
}

// ListStories returns all stories, newest first.
func (s *Service) ListStories(ctx context.Context) ([]models.Story, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, background, character_num, user_id, created_at FROM stories ORDER BY created_at DESC, title ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	defer rows.Close()

	var stories []models.Story
	for rows.Next() {
		var st models.Story
		if err := rows.Scan(&st.ID, &st.Title, &st.Background, &st.CharacterNum, &st.UserID, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		stories = append(stories, st)
	}
	return stories, rows.Err()
}

func (s *Service) GetStory(ctx context.Context, storyID string) (*models.Story, error) {
	var st models.Story
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, background, character_num, user_id, created_at FROM stories WHERE id = ?`,
		storyID,
	).Scan(&st.ID, &st.Title, &st.Background, &st.CharacterNum, &st.UserID, &st.CreatedAt)
	if err != nil {
		if err = notFound(err); errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get story: %w", err)
	}
	return &st, nil
}

// DeleteStory removes the story; characters and sessions cascade.
func (s *Service) DeleteStory(ctx context.Context, storyID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM stories WHERE id = ?`, storyID)
	if err != nil {
		return fmt.Errorf("delete story: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("story rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
