// Package story is the SQL-backed story/character directory and game session
// registry.
package story

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a story, character or session does not exist.
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid input")
)

// Service wraps the database for stories, characters and sessions.
type Service struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

func NewService(db *sql.DB) *Service {
	return &Service{
		db:    db,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
