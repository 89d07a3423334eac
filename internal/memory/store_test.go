package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Corleone-Yang/Sekai-Take-Home/internal/config"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/models"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/storage"
)

func TestStoreContract(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"inmemory": func(t *testing.T) Store { return NewInMemoryStore() },
		"sql": func(t *testing.T) Store {
			db := openTestDB(t)
			t.Cleanup(func() { db.Close() })
			return NewSQLStore(db)
		},
	}
	for name, factory := range stores {
		t.Run(name, func(t *testing.T) {
			runStoreContract(t, factory(t))
		})
	}
}

func runStoreContract(t *testing.T, store Store) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	has, err := store.HasLongTerm(ctx, "s1")
	if err != nil || has {
		t.Fatalf("fresh store reports long-term memory: %v %v", has, err)
	}

	seed := []models.LongTermMemory{
		{ID: "lt-1", CharacterID: "owl", Content: "Lives in the oak", Category: models.CategoryBackground, Importance: 10, CreatedAt: base},
		{ID: "lt-2", CharacterID: "owl", Content: "Wise", Category: models.CategoryPersonality, Importance: 10, CreatedAt: base},
		{ID: "lt-3", CharacterID: "fox", Content: "Sly", Category: models.CategoryPersonality, Importance: 10, CreatedAt: base},
	}
	if err := store.SeedLongTerm(ctx, "s1", seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	owl, err := store.LongTerm(ctx, "s1", "owl")
	if err != nil {
		t.Fatalf("long term: %v", err)
	}
	if len(owl) != 2 || owl[0].ID != "lt-1" || owl[1].ID != "lt-2" {
		t.Fatalf("unexpected owl long-term memories %+v", owl)
	}
	if has, _ := store.HasLongTerm(ctx, "s1"); !has {
		t.Fatalf("expected long-term memory for s1")
	}
	if other, _ := store.LongTerm(ctx, "s2", "owl"); len(other) != 0 {
		t.Fatalf("memory leaked across sessions: %+v", other)
	}

	// appended out of order; reads come back by turn number
	for _, turn := range []int{2, 1, 3} {
		entry := models.ShortTermMemory{
			ID:         fmt.Sprintf("st-%d", turn),
			Content:    fmt.Sprintf("turn %d", turn),
			TurnNumber: turn,
			Importance: 5,
			CreatedAt:  base.Add(time.Duration(turn) * time.Minute),
		}
		if err := store.AppendShortTerm(ctx, "s1", "owl", entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	short, err := store.ShortTerm(ctx, "s1", "owl")
	if err != nil {
		t.Fatalf("short term: %v", err)
	}
	for i, m := range short {
		if m.TurnNumber != i+1 {
			t.Fatalf("short-term not ordered by turn: %+v", short)
		}
	}

	replacement := []models.ShortTermMemory{
		{ID: "st-x", Content: "summary", TurnNumber: 1, Importance: 8, Consolidated: true, CreatedAt: base},
		{ID: "st-y", Content: "latest", TurnNumber: 4, Importance: 5, CreatedAt: base},
	}
	if err := store.ReplaceShortTerm(ctx, "s1", "owl", replacement); err != nil {
		t.Fatalf("replace: %v", err)
	}
	short, _ = store.ShortTerm(ctx, "s1", "owl")
	if len(short) != 2 || !short[0].Consolidated || short[1].Content != "latest" {
		t.Fatalf("replace not applied: %+v", short)
	}
	if fox, _ := store.ShortTerm(ctx, "s1", "fox"); len(fox) != 0 {
		t.Fatalf("replace touched another character: %+v", fox)
	}
}

func TestSQLStoreReplaceIsAtomic(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	store := NewSQLStore(db)
	ctx := context.Background()

	original := models.ShortTermMemory{ID: "keep", Content: "original", TurnNumber: 1, Importance: 5, CreatedAt: time.Now()}
	if err := store.AppendShortTerm(ctx, "s1", "owl", original); err != nil {
		t.Fatalf("append: %v", err)
	}

	// duplicate ids violate the unique constraint half way through
	broken := []models.ShortTermMemory{
		{ID: "dup", Content: "a", TurnNumber: 1, CreatedAt: time.Now()},
		{ID: "dup", Content: "b", TurnNumber: 2, CreatedAt: time.Now()},
	}
	err := store.ReplaceShortTerm(ctx, "s1", "owl", broken)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}

	got, err := store.ShortTerm(ctx, "s1", "owl")
	if err != nil {
		t.Fatalf("short term: %v", err)
	}
	if len(got) != 1 || got[0].ID != "keep" {
		t.Fatalf("prior list not preserved: %+v", got)
	}
}

func TestSQLStoreWrapsFailures(t *testing.T) {
	db := openTestDB(t)
	store := NewSQLStore(db)
	db.Close()
	ctx := context.Background()

	if _, err := store.LongTerm(ctx, "s", "c"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("long term: expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := store.ShortTerm(ctx, "s", "c"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("short term: expected ErrStoreUnavailable, got %v", err)
	}
	if err := store.AppendShortTerm(ctx, "s", "c", models.ShortTermMemory{ID: "x"}); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("append: expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := store.HasLongTerm(ctx, "s"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("has: expected ErrStoreUnavailable, got %v", err)
	}
}

func TestInMemoryStoreReturnsCopies(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	_ = store.AppendShortTerm(ctx, "s", "c", models.ShortTermMemory{ID: "a", Content: "one", TurnNumber: 1})

	got, _ := store.ShortTerm(ctx, "s", "c")
	got[0].Content = "mutated"

	again, _ := store.ShortTerm(ctx, "s", "c")
	if again[0].Content != "one" {
		t.Fatalf("store exposed internal slice")
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}
