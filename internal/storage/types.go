package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// Retain caps the number of journal rows kept (sqlite only); 0 keeps all.
	Retain int
}

// Entry is one journal record. Data holds the event payload as JSON.
type Entry struct {
	At     time.Time `json:"at"`
	Type   string    `json:"type"`
	Plugin string    `json:"plugin,omitempty"`
	Data   string    `json:"data,omitempty"`
}
