// Package game runs one story turn: memory update, memory consolidation and
// the ordered NPC replies.
package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Corleone-Yang/Sekai-Take-Home/internal/log"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/memory"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/models"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/service/ai"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/service/story"
)

type Config struct {
	ForgetThreshold   int
	ModelTimeout      time.Duration // per model call, 0 disables
	MemoryConcurrency int
	RefreshPersona    bool
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

// Orchestrator is the entry point of the engine.
type Orchestrator struct {
	sessions  Sessions
	directory Directory
	store     memory.Store
	cfg       Config
	now       func() time.Time
	newID     func() string

	memoryGW *MemoryGateway
	forgetGW *ForgetGateway
	agent    *CharacterAgent
}

func NewOrchestrator(sessions Sessions, directory Directory, store memory.Store, model ai.Generator, cfg Config, opts ...Option) *Orchestrator {
	if cfg.ForgetThreshold <= 0 {
		cfg.ForgetThreshold = DefaultForgetThreshold
	}
	if cfg.MemoryConcurrency <= 0 {
		cfg.MemoryConcurrency = 1
	}
	o := &Orchestrator{
		sessions:  sessions,
		directory: directory,
		store:     store,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}

	model = ai.WithTimeout(model, cfg.ModelTimeout)
	o.memoryGW = &MemoryGateway{model: model, store: store, now: o.now, newID: o.newID}
	o.forgetGW = &ForgetGateway{model: model, store: store, threshold: cfg.ForgetThreshold, now: o.now, newID: o.newID}
	o.agent = &CharacterAgent{model: model, now: o.now}
	if cfg.RefreshPersona {
		o.agent.directory = directory
	}
	return o
}

type stage int

const (
	stageInit stage = iota
	stageMemoryUpdate
	stageForgetCheck
	stageCharacterTurn
	stageDone
)

func (s stage) String() string {
	switch s {
	case stageInit:
		return "init"
	case stageMemoryUpdate:
		return "memory_update"
	case stageForgetCheck:
		return "forget_check"
	case stageCharacterTurn:
		return "character_turn"
	case stageDone:
		return "done"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// TurnOption customises a single ProcessTurn call.
type TurnOption func(*turn)

// WithReplyHook is called with each NPC reply as soon as it is produced.
func WithReplyHook(fn func(models.DialogMessage)) TurnOption {
	return func(t *turn) { t.onReply = fn }
}

// npc is one non-player character's working state for a turn. memoryOK
// drops to false once a read or write for it failed; its memory is then left
// alone for the rest of the turn.
type npc struct {
	state    *models.CharacterAgentState
	memoryOK bool
}

type turn struct {
	sessionID string
	message   string
	stage     stage

	session *models.GameSession
	player  models.Character
	npcs    []*npc
	dialog  []models.DialogMessage
	replies []models.DialogMessage
	onReply func(models.DialogMessage)
}

// ProcessTurn runs one player message through the pipeline and returns the
// NPC replies in story order. Only session-level problems are returned as
// errors; model and memory failures fall back per character.
func (o *Orchestrator) ProcessTurn(ctx context.Context, sessionID, message string, opts ...TurnOption) ([]models.DialogMessage, error) {
	t := &turn{sessionID: sessionID, message: strings.TrimSpace(message), stage: stageInit}
	for _, opt := range opts {
		opt(t)
	}
	logger := log.FromCtx(ctx).With().Str("session_id", sessionID).Logger()
	ctx = log.WithLogger(ctx, logger)

	for t.stage != stageDone {
		current := t.stage
		if err := o.step(ctx, t); err != nil {
			return nil, err
		}
		logger.Debug().Str("stage", current.String()).Int("npcs", len(t.npcs)).Msg("turn stage complete")
	}
	return t.replies, nil
}

func (o *Orchestrator) step(ctx context.Context, t *turn) error {
	switch t.stage {
	case stageInit:
		if err := o.initTurn(ctx, t); err != nil {
			return err
		}
		t.stage = stageMemoryUpdate
	case stageMemoryUpdate:
		o.updateMemories(ctx, t)
		t.stage = stageForgetCheck
	case stageForgetCheck:
		o.consolidateMemories(ctx, t)
		t.stage = stageCharacterTurn
	case stageCharacterTurn:
		o.characterTurns(ctx, t)
		t.stage = stageDone
	}
	return nil
}

func (o *Orchestrator) initTurn(ctx context.Context, t *turn) error {
	if t.message == "" {
		return ErrEmptyMessage
	}
	se, err := o.sessions.GetSession(ctx, t.sessionID)
	if err != nil {
		if errors.Is(err, story.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("load session: %w", err)
	}
	if !se.Active {
		return ErrSessionInactive
	}
	t.session = se

	chars, err := o.directory.ListCharacters(ctx, se.StoryID)
	if err != nil {
		return fmt.Errorf("load characters: %w", err)
	}
	found := false
	for _, c := range chars {
		if c.ID == se.PlayerCharacterID {
			t.player = c
			found = true
			break
		}
	}
	if !found {
		return ErrPlayerCharacterNotFound
	}

	playerMsg := models.DialogMessage{
		CharacterID:   t.player.ID,
		CharacterName: t.player.Name,
		Content:       t.message,
		Timestamp:     o.now(),
	}
	t.dialog = []models.DialogMessage{playerMsg}

	for _, c := range chars {
		if c.ID == t.player.ID {
			continue
		}
		t.npcs = append(t.npcs, o.loadNPC(ctx, t.sessionID, c, playerMsg))
	}
	return nil
}

func (o *Orchestrator) loadNPC(ctx context.Context, sessionID string, c models.Character, playerMsg models.DialogMessage) *npc {
	n := &npc{
		state: &models.CharacterAgentState{
			CharacterID:   c.ID,
			CharacterName: c.Name,
			Personality:   c.Character,
			Background:    c.Background,
			Context:       []models.DialogMessage{playerMsg},
		},
		memoryOK: true,
	}
	lt, err := o.store.LongTerm(ctx, sessionID, c.ID)
	if err != nil {
		o.warnMemory(ctx, stageInit, c.ID, err)
		n.memoryOK = false
	}
	st, err := o.store.ShortTerm(ctx, sessionID, c.ID)
	if err != nil {
		o.warnMemory(ctx, stageInit, c.ID, err)
		n.memoryOK = false
	}
	n.state.LongTerm = lt
	n.state.ShortTerm = st
	return n
}

// updateMemories runs the memory gateway for every NPC concurrently; each
// goroutine owns a distinct character partition.
func (o *Orchestrator) updateMemories(ctx context.Context, t *turn) {
	var g errgroup.Group
	g.SetLimit(o.cfg.MemoryConcurrency)
	for _, n := range t.npcs {
		if !n.memoryOK {
			continue
		}
		g.Go(func() error {
			if err := o.memoryGW.Update(ctx, t.sessionID, n.state); err != nil {
				o.warnMemory(ctx, stageMemoryUpdate, n.state.CharacterID, err)
				n.memoryOK = false
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) consolidateMemories(ctx context.Context, t *turn) {
	var g errgroup.Group
	g.SetLimit(o.cfg.MemoryConcurrency)
	for _, n := range t.npcs {
		if !n.memoryOK || len(n.state.ShortTerm) <= o.forgetGW.Threshold() {
			continue
		}
		g.Go(func() error {
			if _, err := o.forgetGW.Check(ctx, t.sessionID, n.state); err != nil {
				o.warnMemory(ctx, stageForgetCheck, n.state.CharacterID, err)
				n.memoryOK = false
			}
			return nil
		})
	}
	_ = g.Wait()
}

// characterTurns asks each NPC in story order; every agent sees all replies
// produced before it in this turn.
func (o *Orchestrator) characterTurns(ctx context.Context, t *turn) {
	for _, n := range t.npcs {
		n.state.Context = append([]models.DialogMessage(nil), t.dialog...)
		reply := o.agent.Respond(ctx, n.state)
		t.dialog = append(t.dialog, reply)
		t.replies = append(t.replies, reply)
		if t.onReply != nil {
			t.onReply(reply)
		}
	}
}

func (o *Orchestrator) warnMemory(ctx context.Context, s stage, characterID string, err error) {
	log.FromCtx(ctx).Warn().Err(err).
		Str("character_id", characterID).
		Str("stage", s.String()).
		Bool("store_unavailable", errors.Is(err, memory.ErrStoreUnavailable)).
		Msg("memory skipped for this turn")
}
