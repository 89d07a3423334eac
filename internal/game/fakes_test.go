package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Corleone-Yang/Sekai-Take-Home/internal/memory"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/models"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/service/story"
)

var errModelDown = errors.New("model unavailable")

type fakeSessions struct {
	sessions map[string]*models.GameSession
}

func (f *fakeSessions) GetSession(_ context.Context, id string) (*models.GameSession, error) {
	se, ok := f.sessions[id]
	if !ok {
		return nil, story.ErrNotFound
	}
	cp := *se
	return &cp, nil
}

type fakeDirectory struct {
	mu         sync.Mutex
	stories    map[string]*models.Story
	characters []models.Character
	getErr     error
	getCalls   int
}

func (f *fakeDirectory) GetStory(_ context.Context, id string) (*models.Story, error) {
	if st, ok := f.stories[id]; ok {
		return st, nil
	}
	return nil, story.ErrNotFound
}

func (f *fakeDirectory) ListCharacters(_ context.Context, storyID string) ([]models.Character, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Character
	for _, c := range f.characters {
		if c.StoryID == storyID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeDirectory) GetCharacter(_ context.Context, id string) (*models.Character, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, c := range f.characters {
		if c.ID == id {
			cp := c
			return &cp, nil
		}
	}
	return nil, story.ErrNotFound
}

func (f *fakeDirectory) rename(id, name, personality string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.characters {
		if f.characters[i].ID == id {
			f.characters[i].Name = name
			f.characters[i].Character = personality
		}
	}
}

// scriptedModel answers each prompt through respond and records every prompt.
type scriptedModel struct {
	mu      sync.Mutex
	prompts []string
	respond func(ctx context.Context, prompt string) (string, error)
}

func (m *scriptedModel) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	return m.respond(ctx, prompt)
}

func (m *scriptedModel) promptsContaining(sub string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, p := range m.prompts {
		if strings.Contains(p, sub) {
			out = append(out, p)
		}
	}
	return out
}

func failingModel() *scriptedModel {
	return &scriptedModel{respond: func(context.Context, string) (string, error) {
		return "", errModelDown
	}}
}

// echoModel summarises with fixed strings and makes each character say
// "<name> replies".
func echoModel() *scriptedModel {
	return &scriptedModel{respond: func(_ context.Context, prompt string) (string, error) {
		switch {
		case strings.HasPrefix(prompt, "Extract the most important"):
			return "remembered", nil
		case strings.HasPrefix(prompt, "Summarize the following"):
			return "a consolidated summary", nil
		case strings.HasPrefix(prompt, "You are roleplaying as a character named "):
			name := strings.TrimPrefix(prompt, "You are roleplaying as a character named ")
			name = name[1:strings.Index(name[1:], `"`)+1]
			return name + " replies", nil
		}
		return "", fmt.Errorf("unexpected prompt %q", prompt)
	}}
}

// flakyStore wraps a store and fails selected operations for one character.
type flakyStore struct {
	memory.Store
	character  string
	failRead   bool
	failAppend bool
	failWrite  bool
}

func (s *flakyStore) ShortTerm(ctx context.Context, sessionID, characterID string) ([]models.ShortTermMemory, error) {
	if s.failRead && characterID == s.character {
		return nil, fmt.Errorf("read: %w", memory.ErrStoreUnavailable)
	}
	return s.Store.ShortTerm(ctx, sessionID, characterID)
}

func (s *flakyStore) AppendShortTerm(ctx context.Context, sessionID, characterID string, e models.ShortTermMemory) error {
	if s.failAppend && characterID == s.character {
		return fmt.Errorf("append: %w", memory.ErrStoreUnavailable)
	}
	return s.Store.AppendShortTerm(ctx, sessionID, characterID, e)
}

func (s *flakyStore) ReplaceShortTerm(ctx context.Context, sessionID, characterID string, e []models.ShortTermMemory) error {
	if s.failWrite && characterID == s.character {
		return fmt.Errorf("replace: %w", memory.ErrStoreUnavailable)
	}
	return s.Store.ReplaceShortTerm(ctx, sessionID, characterID, e)
}

// fixture is a forest story: the player controls the Ranger, the Owl and
// the Fox are NPCs in that order.
type fixture struct {
	sessions  *fakeSessions
	directory *fakeDirectory
	store     *memory.InMemoryStore
}

const (
	storyID   = "forest"
	sessionID = "session-1"
	rangerID  = "ranger"
	owlID     = "owl"
	foxID     = "fox"
)

func newFixture() *fixture {
	chars := []models.Character{
		{ID: rangerID, StoryID: storyID, Name: "Forest Ranger", Character: "Brave", Background: "Guardian", Position: 0},
		{ID: owlID, StoryID: storyID, Name: "Wise Owl", Character: "Speaks in riddles", Background: "Centuries old", Position: 1},
		{ID: foxID, StoryID: storyID, Name: "Mischievous Fox", Character: "Playful", Background: "Prankster", Position: 2},
	}
	return &fixture{
		sessions: &fakeSessions{sessions: map[string]*models.GameSession{
			sessionID:  {ID: sessionID, StoryID: storyID, PlayerCharacterID: rangerID, Active: true},
			"ended":    {ID: "ended", StoryID: storyID, PlayerCharacterID: rangerID, Active: false},
			"orphaned": {ID: "orphaned", StoryID: storyID, PlayerCharacterID: "ghost", Active: true},
		}},
		directory: &fakeDirectory{
			stories:    map[string]*models.Story{storyID: {ID: storyID, Title: "The Enchanted Forest", CharacterNum: 3}},
			characters: chars,
		},
		store: memory.NewInMemoryStore(),
	}
}

func (f *fixture) orchestrator(model *scriptedModel, cfg Config, store memory.Store) *Orchestrator {
	if store == nil {
		store = f.store
	}
	var seq int64
	return NewOrchestrator(f.sessions, f.directory, store, model, cfg,
		WithClock(func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }),
		WithIDGenerator(func() string { return fmt.Sprintf("id-%d", atomic.AddInt64(&seq, 1)) }),
	)
}

func seedShortTerm(count int, characterID string) []models.ShortTermMemory {
	out := make([]models.ShortTermMemory, count)
	for i := range out {
		out[i] = models.ShortTermMemory{
			ID:          fmt.Sprintf("seed-%s-%d", characterID, i+1),
			SessionID:   sessionID,
			CharacterID: characterID,
			Content:     fmt.Sprintf("memory %d", i+1),
			TurnNumber:  i + 1,
			Importance:  5,
		}
	}
	return out
}
