// internal/model/history.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventRecord is a persisted protocol message
type EventRecord struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Raw        string    `json:"raw" db:"raw"`
	Key        StatusKey `json:"key" db:"key"`
	Value      string    `json:"value" db:"value"`
	ReceivedAt time.Time `json:"received_at" db:"received_at"`
}

// CommandRecord is a persisted outbound command
type CommandRecord struct {
	ID       uuid.UUID `json:"id" db:"id"`
	Command  string    `json:"command" db:"command"`
	Frame    string    `json:"frame" db:"frame"`
	IssuedAt time.Time `json:"issued_at" db:"issued_at"`
}
