package driver

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/marlindb/marlin/internal/util/lazyerrors"
)

// Session is an explicit transaction handle threaded through every command
// of one transactional sequence.
//
// The handle is released exactly once, by Commit or Abort; any command
// issued after release fails fast instead of silently starting a new
// implicit session.
type Session struct {
	id       uuid.UUID
	sess     mongo.Session
	mu       sync.Mutex
	released bool
}

// NewSession wraps a driver session. A nil driver session is allowed for
// compile-only use and tests; it carries the release discipline without a
// transport.
func NewSession(sess mongo.Session) *Session {
	return &Session{
		id:   uuid.New(),
		sess: sess,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id.String()
}

// StartTransaction starts the transaction on the underlying session.
func (s *Session) StartTransaction() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return ErrSessionReleased
	}

	if s.sess == nil {
		return nil
	}

	return lazyerrors.Error(s.sess.StartTransaction())
}

// Context returns a context that routes commands through this session,
// or an error if the session was already released.
func (s *Session) Context(ctx context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil, ErrSessionReleased
	}

	if s.sess == nil {
		return ctx, nil
	}

	return mongo.NewSessionContext(ctx, s.sess), nil
}

// Commit commits the transaction and releases the session.
func (s *Session) Commit(ctx context.Context) error {
	return s.release(ctx, true)
}

// Abort aborts the transaction and releases the session.
func (s *Session) Abort(ctx context.Context) error {
	return s.release(ctx, false)
}

// Released reports whether the session was already committed or aborted.
func (s *Session) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.released
}

// release ends the session exactly once.
func (s *Session) release(ctx context.Context, commit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return ErrSessionReleased
	}

	s.released = true

	if s.sess == nil {
		return nil
	}

	defer s.sess.EndSession(ctx)

	var err error
	if commit {
		err = s.sess.CommitTransaction(ctx)
	} else {
		err = s.sess.AbortTransaction(ctx)
	}

	return lazyerrors.Error(err)
}
