package models

import "time"

type Story struct {
	ID           string    `json:"story_id"`
	Title        string    `json:"title"`
	Background   string    `json:"background"`
	CharacterNum int       `json:"character_num"`
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Character belongs to a story. Position is its declared order within the
// story and drives the NPC reply order.
type Character struct {
	ID         string    `json:"character_id"`
	StoryID    string    `json:"story_id"`
	Name       string    `json:"name"`
	Character  string    `json:"character"`
	Background string    `json:"background"`
	Position   int       `json:"position"`
	CreatedAt  time.Time `json:"created_at"`
}
