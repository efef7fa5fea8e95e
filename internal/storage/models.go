package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type Registration struct {
	RegistrationNumber string
	SessionID          string
	Tingkatan          string
	DataJSON           string // completed form data stored as JSON text
	Completion         float64
	CreatedAt          time.Time
}

type TrackingEntry struct {
	ID                 int64
	RegistrationNumber string
	Status             string // "submitted", "verified", "accepted", "rejected"
	Note               string
	CreatedAt          time.Time
}
