package memory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Corleone-Yang/Sekai-Take-Home/internal/models"
)

// SQLStore persists memories in the long_term_memories and
// short_term_memories tables created by storage.Migrate.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) LongTerm(ctx context.Context, sessionID, characterID string) ([]models.LongTermMemory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, character_id, content, category, importance, created_at
		FROM long_term_memories WHERE session_id = ? AND character_id = ? ORDER BY created_at ASC, seq ASC`,
		sessionID, characterID,
	)
	if err != nil {
		return nil, unavailable("list long-term memories", err)
	}
	defer rows.Close()

	var out []models.LongTermMemory
	for rows.Next() {
		var m models.LongTermMemory
		if err := rows.Scan(&m.ID, &m.SessionID, &m.CharacterID, &m.Content, &m.Category, &m.Importance, &m.CreatedAt); err != nil {
			return nil, unavailable("scan long-term memory", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list long-term memories", err)
	}
	return out, nil
}

func (s *SQLStore) ShortTerm(ctx context.Context, sessionID, characterID string) ([]models.ShortTermMemory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, character_id, content, turn_number, importance, consolidated, created_at
		FROM short_term_memories WHERE session_id = ? AND character_id = ? ORDER BY turn_number ASC, seq ASC`,
		sessionID, characterID,
	)
	if err != nil {
		return nil, unavailable("list short-term memories", err)
	}
	defer rows.Close()

	var out []models.ShortTermMemory
	for rows.Next() {
		var m models.ShortTermMemory
		if err := rows.Scan(&m.ID, &m.SessionID, &m.CharacterID, &m.Content, &m.TurnNumber, &m.Importance, &m.Consolidated, &m.CreatedAt); err != nil {
			return nil, unavailable("scan short-term memory", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list short-term memories", err)
	}
	return out, nil
}

func (s *SQLStore) AppendShortTerm(ctx context.Context, sessionID, characterID string, entry models.ShortTermMemory) error {
	if err := insertShortTerm(ctx, s.db, sessionID, characterID, entry); err != nil {
		return unavailable("append short-term memory", err)
	}
	return nil
}

// ReplaceShortTerm swaps the whole list inside one transaction.
func (s *SQLStore) ReplaceShortTerm(ctx context.Context, sessionID, characterID string, entries []models.ShortTermMemory) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin tx", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM short_term_memories WHERE session_id = ? AND character_id = ?`,
		sessionID, characterID,
	); err != nil {
		return unavailable("clear short-term memories", err)
	}
	for _, e := range entries {
		if err = insertShortTerm(ctx, tx, sessionID, characterID, e); err != nil {
			return unavailable("insert short-term memory", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return unavailable("commit short-term memories", err)
	}
	return nil
}

func (s *SQLStore) SeedLongTerm(ctx context.Context, sessionID string, entries []models.LongTermMemory) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin tx", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	for _, e := range entries {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO long_term_memories (id, session_id, character_id, content, category, importance, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ID, sessionID, e.CharacterID, e.Content, string(e.Category), e.Importance, e.CreatedAt.UTC(),
		); err != nil {
			return unavailable("insert long-term memory", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return unavailable("commit long-term memories", err)
	}
	return nil
}

func (s *SQLStore) HasLongTerm(ctx context.Context, sessionID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM long_term_memories WHERE session_id = ?`, sessionID,
	).Scan(&count)
	if err != nil {
		return false, unavailable("count long-term memories", err)
	}
	return count > 0, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertShortTerm(ctx context.Context, db execer, sessionID, characterID string, e models.ShortTermMemory) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO short_term_memories (id, session_id, character_id, content, turn_number, importance, consolidated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, sessionID, characterID, e.Content, e.TurnNumber, e.Importance, e.Consolidated, e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert %s: %w", e.ID, err)
	}
	return nil
}
