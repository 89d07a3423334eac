// Package memory holds long-term and short-term character memory, keyed by
// (session, character).
package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/Corleone-Yang/Sekai-Take-Home/internal/models"
)

// ErrStoreUnavailable wraps every read or write failure of a Store.
var ErrStoreUnavailable = errors.New("memory store unavailable")

// Store is the memory persistence contract used by the turn pipeline.
// LongTerm is ordered by creation; ShortTerm by turn number ascending.
// ReplaceShortTerm is all-or-nothing.
type Store interface {
	LongTerm(ctx context.Context, sessionID, characterID string) ([]models.LongTermMemory, error)
	ShortTerm(ctx context.Context, sessionID, characterID string) ([]models.ShortTermMemory, error)
	AppendShortTerm(ctx context.Context, sessionID, characterID string, entry models.ShortTermMemory) error
	ReplaceShortTerm(ctx context.Context, sessionID, characterID string, entries []models.ShortTermMemory) error
	SeedLongTerm(ctx context.Context, sessionID string, entries []models.LongTermMemory) error
	HasLongTerm(ctx context.Context, sessionID string) (bool, error)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
