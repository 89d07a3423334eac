package models

import "time"

// GameSession is one play-through of a story. All memory is scoped to it.
type GameSession struct {
	ID                string    `json:"session_id"`
	StoryID           string    `json:"story_id"`
	PlayerCharacterID string    `json:"player_character_id"`
	UserID            string    `json:"user_id"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
