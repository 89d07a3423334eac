package game

import (
	"context"
	"fmt"
	"time"

	"github.com/Corleone-Yang/Sekai-Take-Home/internal/log"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/memory"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/models"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/service/ai"
)

const (
	DefaultForgetThreshold = 20

	summaryImportance  = 8
	fallbackImportance = 7
)

// ForgetGateway folds the middle of an over-long short-term list into one
// consolidated entry, keeping the first and last threshold/2 entries verbatim.
type ForgetGateway struct {
	model     ai.Generator
	store     memory.Store
	threshold int
	now       func() time.Time
	newID     func() string
}

// Threshold is the entry count above which consolidation runs.
func (g *ForgetGateway) Threshold() int {
	return g.threshold
}

// Consolidate returns first ++ [summary] ++ last. entries must be ordered by
// turn number. When the middle span is empty the input is returned as a copy.
func (g *ForgetGateway) Consolidate(ctx context.Context, sessionID, characterID string, entries []models.ShortTermMemory) []models.ShortTermMemory {
	half := g.threshold / 2
	if len(entries) <= 2*half {
		return append([]models.ShortTermMemory(nil), entries...)
	}
	first := entries[:half]
	middle := entries[half : len(entries)-half]
	last := entries[len(entries)-half:]

	summary := models.ShortTermMemory{
		ID:          g.newID(),
		SessionID:   sessionID,
		CharacterID: characterID,
		// the first folded turn keeps numbers strictly increasing
		TurnNumber:   middle[0].TurnNumber,
		Consolidated: true,
		CreatedAt:    g.now(),
	}
	text, err := g.model.Generate(ctx, consolidationPrompt(middle))
	if err != nil {
		log.FromCtx(ctx).Warn().Err(err).
			Str("session_id", sessionID).
			Str("character_id", characterID).
			Str("stage", stageForgetCheck.String()).
			Msg("memory consolidation failed, using generic summary")
		summary.Content = fallbackSummary(middle)
		summary.Importance = fallbackImportance
	} else {
		summary.Content = text
		summary.Importance = summaryImportance
	}

	out := make([]models.ShortTermMemory, 0, 2*half+1)
	out = append(out, first...)
	out = append(out, summary)
	out = append(out, last...)
	return out
}

// Check consolidates state's short-term memory when it exceeds the threshold
// and swaps the stored list. state is only updated after the store accepted
// the new list. It reports whether a consolidation happened.
func (g *ForgetGateway) Check(ctx context.Context, sessionID string, state *models.CharacterAgentState) (bool, error) {
	if len(state.ShortTerm) <= g.threshold {
		return false, nil
	}
	consolidated := g.Consolidate(ctx, sessionID, state.CharacterID, state.ShortTerm)
	if len(consolidated) == len(state.ShortTerm) {
		return false, nil
	}
	if err := g.store.ReplaceShortTerm(ctx, sessionID, state.CharacterID, consolidated); err != nil {
		return false, fmt.Errorf("replace memory for %s: %w", state.CharacterID, err)
	}
	state.ShortTerm = consolidated
	return true, nil
}
