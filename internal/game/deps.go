package game

import (
	"context"

	"github.com/Corleone-Yang/Sekai-Take-Home/internal/models"
)

// Sessions resolves game sessions. Unknown ids return story.ErrNotFound.
type Sessions interface {
	GetSession(ctx context.Context, sessionID string) (*models.GameSession, error)
}

// Directory is the authoritative story/character source.
// ListCharacters returns characters in their declared story order.
type Directory interface {
	GetStory(ctx context.Context, storyID string) (*models.Story, error)
	ListCharacters(ctx context.Context, storyID string) ([]models.Character, error)
	GetCharacter(ctx context.Context, characterID string) (*models.Character, error)
}
