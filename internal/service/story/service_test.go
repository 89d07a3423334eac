package story

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/Corleone-Yang/Sekai-Take-Home/internal/config"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/storage"
)

func TestCreateStoryKeepsCharacterOrder(t *testing.T) {
	svc, db := newTestService(t)
	defer db.Close()
	ctx := context.Background()

	st, chars, err := svc.CreateStory(ctx, NewStory{
		Title:      "Forest",
		Background: "Trees whisper.",
		Characters: []NewCharacter{
			{Name: "Ranger", Character: "brave"},
			{Name: "Owl", Character: "wise"},
			{Name: "Fox", Character: "sly"},
		},
	})
	if err != nil {
		t.Fatalf("create story: %v", err)
	}
	if st.CharacterNum != 3 || len(chars) != 3 {
		t.Fatalf("unexpected character count %d/%d", st.CharacterNum, len(chars))
	}

	listed, err := svc.ListCharacters(ctx, st.ID)
	if err != nil {
		t.Fatalf("list characters: %v", err)
	}
	want := []string{"Ranger", "Owl", "Fox"}
	for i, c := range listed {
		if c.Name != want[i] || c.Position != i {
			t.Fatalf("character %d = %s@%d, want %s@%d", i, c.Name, c.Position, want[i], i)
		}
	}

	got, err := svc.GetStory(ctx, st.ID)
	if err != nil || got.Title != "Forest" {
		t.Fatalf("get story: %v %+v", err, got)
	}
}

func TestCreateStoryValidation(t *testing.T) {
	svc, db := newTestService(t)
	defer db.Close()
	ctx := context.Background()

	if _, _, err := svc.CreateStory(ctx, NewStory{Title: " "}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected title validation error")
	}
	if _, _, err := svc.CreateStory(ctx, NewStory{Title: "x", Characters: []NewCharacter{{Name: ""}}}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected character name validation error")
	}
	stories, _ := svc.ListStories(ctx)
	if len(stories) != 0 {
		t.Fatalf("invalid stories were stored")
	}
}

func TestUpdateCharacterKeepsEmptyFields(t *testing.T) {
	svc, db := newTestService(t)
	defer db.Close()
	ctx := context.Background()

	_, chars, err := svc.CreateStory(ctx, NewStory{
		Title:      "Ship",
		Characters: []NewCharacter{{Name: "Captain", Character: "decisive", Background: "veteran"}},
	})
	if err != nil {
		t.Fatalf("create story: %v", err)
	}
	updated, err := svc.UpdateCharacter(ctx, chars[0].ID, NewCharacter{Character: "weary"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Captain" || updated.Character != "weary" || updated.Background != "veteran" {
		t.Fatalf("unexpected update result %+v", updated)
	}
	fetched, _ := svc.GetCharacter(ctx, chars[0].ID)
	if fetched.Character != "weary" {
		t.Fatalf("update not persisted: %+v", fetched)
	}
	if _, err := svc.UpdateCharacter(ctx, "missing", NewCharacter{Name: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	svc, db := newTestService(t)
	defer db.Close()
	ctx := context.Background()

	st, chars, err := svc.CreateStory(ctx, NewStory{
		Title:      "Forest",
		Characters: []NewCharacter{{Name: "Ranger"}, {Name: "Owl"}},
	})
	if err != nil {
		t.Fatalf("create story: %v", err)
	}
	_, otherChars, err := svc.CreateStory(ctx, NewStory{Title: "Other", Characters: []NewCharacter{{Name: "Stranger"}}})
	if err != nil {
		t.Fatalf("create other story: %v", err)
	}

	if _, err := svc.CreateSession(ctx, st.ID, otherChars[0].ID, "u1"); !errors.Is(err, ErrCharacterNotInStory) {
		t.Fatalf("expected ErrCharacterNotInStory, got %v", err)
	}
	if _, err := svc.CreateSession(ctx, "missing", chars[0].ID, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for story, got %v", err)
	}

	se, err := svc.CreateSession(ctx, st.ID, chars[0].ID, "u1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	got, err := svc.GetSession(ctx, se.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !got.Active || got.PlayerCharacterID != chars[0].ID || got.UserID != "u1" {
		t.Fatalf("unexpected session %+v", got)
	}

	if err := svc.EndSession(ctx, se.ID); err != nil {
		t.Fatalf("end session: %v", err)
	}
	got, _ = svc.GetSession(ctx, se.ID)
	if got.Active {
		t.Fatalf("session still active after end")
	}
	if err := svc.EndSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.GetSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteStoryCascades(t *testing.T) {
	svc, db := newTestService(t)
	defer db.Close()
	ctx := context.Background()

	st, chars, err := svc.CreateStory(ctx, NewStory{Title: "Gone", Characters: []NewCharacter{{Name: "Ghost"}}})
	if err != nil {
		t.Fatalf("create story: %v", err)
	}
	if err := svc.DeleteStory(ctx, st.ID); err != nil {
		t.Fatalf("delete story: %v", err)
	}
	if _, err := svc.GetCharacter(ctx, chars[0].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected character cascade delete, got %v", err)
	}
	if err := svc.DeleteStory(ctx, st.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestSeedDemoOnlyOnEmptyDatabase(t *testing.T) {
	svc, db := newTestService(t)
	defer db.Close()
	ctx := context.Background()

	n, err := svc.SeedDemo(ctx)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if n != 2 {
		t.Fatalf("seeded %d stories, want 2", n)
	}
	stories, _ := svc.ListStories(ctx)
	if len(stories) != 2 {
		t.Fatalf("expected 2 stories, got %d", len(stories))
	}
	total := 0
	for _, st := range stories {
		chars, _ := svc.ListCharacters(ctx, st.ID)
		if len(chars) != st.CharacterNum {
			t.Fatalf("story %s: %d characters, declared %d", st.Title, len(chars), st.CharacterNum)
		}
		total += len(chars)
	}
	if total != 7 {
		t.Fatalf("expected 7 demo characters, got %d", total)
	}

	n, err = svc.SeedDemo(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second seed should be a no-op, got %d %v", n, err)
	}
}

func newTestService(t *testing.T) (*Service, *sql.DB) {
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
	return NewService(db), db
}
