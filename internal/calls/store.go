// Package calls records outbound call placements and the carrier's
// lifecycle status callbacks for them.
package calls

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("call record not found")

// Record is one placed call. Status tracks the carrier lifecycle:
// queued, initiated, ringing, answered (in-progress), completed, failed.
type Record struct {
	ID        string    `json:"id"`
	CallSid   string    `json:"call_sid"`
	To        string    `json:"to"`
	From      string    `json:"from"`
	Status    string    `json:"status"`
	Record    bool      `json:"record"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists call records.
type Store interface {
	Save(ctx context.Context, rec Record) error
	UpdateStatus(ctx context.Context, callSid, status string) error
	List(ctx context.Context, limit int) ([]Record, error)
	Close() error
}
