package journal

import (
	"encoding/json"
	"time"
)

const (
	EventTypeTournamentCreated   = "TournamentCreated"
	EventTypePlayerRegistered    = "PlayerRegistered"
	EventTypeTournamentFinalized = "TournamentFinalized"
	EventTypePrizeClaimed        = "PrizeClaimed"
)

type Event struct {
	Sequence     uint64          `json:"sequence"`
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	TournamentID string          `json:"tournament_id"`
	CreatedAt    time.Time       `json:"created_at"`
	Data         json.RawMessage `json:"data"`
}

type Page struct {
	Events []Event `json:"events"`
	Next   uint64  `json:"next"`
}
