package game

import (
	"context"
	"sort"
	"time"

	"github.com/Corleone-Yang/Sekai-Take-Home/internal/log"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/models"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/service/ai"
)

// CharacterAgent produces one in-character reply per call.
type CharacterAgent struct {
	model     ai.Generator
	directory Directory // optional, used to refresh the persona
	now       func() time.Time
}

// RecentMemories ranks short-term memory by importance, then by newest turn,
// and keeps the top five.
func RecentMemories(entries []models.ShortTermMemory) []models.ShortTermMemory {
	ranked := append([]models.ShortTermMemory(nil), entries...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Importance != ranked[j].Importance {
			return ranked[i].Importance > ranked[j].Importance
		}
		return ranked[i].TurnNumber > ranked[j].TurnNumber
	})
	if len(ranked) > recentMemoryLimit {
		ranked = ranked[:recentMemoryLimit]
	}
	return ranked
}

// persona returns the character identity, refreshed from the directory when
// possible and taken from state otherwise.
func (a *CharacterAgent) persona(ctx context.Context, state *models.CharacterAgentState) persona {
	p := persona{
		name:        state.CharacterName,
		personality: state.Personality,
		background:  state.Background,
	}
	if a.directory == nil {
		return p
	}
	ch, err := a.directory.GetCharacter(ctx, state.CharacterID)
	if err != nil || ch == nil {
		log.FromCtx(ctx).Debug().Err(err).Str("character_id", state.CharacterID).Msg("persona refresh skipped")
		return p
	}
	if ch.Name != "" {
		p.name = ch.Name
	}
	if ch.Character != "" {
		p.personality = ch.Character
	}
	if ch.Background != "" {
		p.background = ch.Background
	}
	return p
}

// Respond never fails: a model error yields FallbackReply.
func (a *CharacterAgent) Respond(ctx context.Context, state *models.CharacterAgentState) models.DialogMessage {
	p := a.persona(ctx, state)
	prompt := characterPrompt(p, state.LongTerm, RecentMemories(state.ShortTerm), state.Context)
	text, err := a.model.Generate(ctx, prompt)
	if err != nil {
		log.FromCtx(ctx).Warn().Err(err).
			Str("character_id", state.CharacterID).
			Str("stage", stageCharacterTurn.String()).
			Msg("character reply failed, using fallback line")
		return models.DialogMessage{
			CharacterID:   state.CharacterID,
			CharacterName: state.CharacterName,
			Content:       FallbackReply,
			Timestamp:     a.now(),
		}
	}
	return models.DialogMessage{
		CharacterID:   state.CharacterID,
		CharacterName: p.name,
		Content:       text,
		Timestamp:     a.now(),
	}
}
