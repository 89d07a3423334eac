package models

import "time"

// DialogMessage is one line spoken during a turn, by the player or an NPC.
type DialogMessage struct {
	CharacterID   string    `json:"character_id"`
	CharacterName string    `json:"character_name"`
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
}
