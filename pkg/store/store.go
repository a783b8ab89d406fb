// Package store persists OmniGuide sessions. Every backend keeps the whole
// session (history, mode, detected objects) as one record keyed by the
// client-supplied session id.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core/types"
)

const defaultTTL = 24 * time.Hour

var (
	// ErrNotFound is returned by Get when no session exists for the id.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidID is returned for an empty session id.
	ErrInvalidID = errors.New("invalid session id")
	// ErrInvalidSession is returned by Put for a nil session.
	ErrInvalidSession = errors.New("invalid session")
)

// Store is the session persistence contract. Implementations must return
// copies: mutating a returned session must not change stored state.
type Store interface {
	Get(ctx context.Context, id string) (*types.Session, error)
	Put(ctx context.Context, s *types.Session) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Pruner is implemented by stores without native expiry.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// Pinger is implemented by stores backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

func validate(s *types.Session) error {
	if s == nil {
		return ErrInvalidSession
	}
	if s.ID == "" {
		return ErrInvalidID
	}
	return nil
}
