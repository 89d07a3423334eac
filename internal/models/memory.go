package models

import "time"

type MemoryCategory string

const (
	CategoryBackground   MemoryCategory = "background"
	CategoryPersonality  MemoryCategory = "personality"
	CategoryRelationship MemoryCategory = "relationship"
	CategoryGoal         MemoryCategory = "goal"
)

// Valid reports whether c is one of the known categories.
func (c MemoryCategory) Valid() bool {
	switch c {
	case CategoryBackground, CategoryPersonality, CategoryRelationship, CategoryGoal:
		return true
	}
	return false
}

// LongTermMemory is a durable character fact. The turn pipeline only reads it.
type LongTermMemory struct {
	ID          string         `json:"memory_id"`
	SessionID   string         `json:"session_id"`
	CharacterID string         `json:"character_id"`
	Content     string         `json:"content"`
	Category    MemoryCategory `json:"category"`
	Importance  int            `json:"importance"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ShortTermMemory is per-turn conversational memory. Consolidated marks
// entries produced by the forget step.
type ShortTermMemory struct {
	ID           string    `json:"memory_id"`
	SessionID    string    `json:"session_id"`
	CharacterID  string    `json:"character_id"`
	Content      string    `json:"content"`
	TurnNumber   int       `json:"turn_number"`
	Importance   int       `json:"importance"`
	Consolidated bool      `json:"consolidated"`
	CreatedAt    time.Time `json:"created_at"`
}

// CharacterAgentState is the working state of one NPC for a single turn.
type CharacterAgentState struct {
	CharacterID   string            `json:"character_id"`
	CharacterName string            `json:"character_name"`
	Personality   string            `json:"personality"`
	Background    string            `json:"background"`
	LongTerm      []LongTermMemory  `json:"long_term_memories"`
	ShortTerm     []ShortTermMemory `json:"short_term_memories"`
	Context       []DialogMessage   `json:"current_context"`
}

// LastTurn returns the highest turn number held in ShortTerm, or 0.
func (s *CharacterAgentState) LastTurn() int {
	last := 0
	for _, m := range s.ShortTerm {
		if m.TurnNumber > last {
			last = m.TurnNumber
		}
	}
	return last
}
