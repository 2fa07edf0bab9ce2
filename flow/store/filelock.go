package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrLockHeld is returned when a non-reentrant lock is acquired twice on the
// same context chain, which would otherwise deadlock.
var ErrLockHeld = errors.New("lock already held")

// FileLock is a cross-process mutex backed by exclusive file creation.
//
// Ownership rides on the context: a scope that already holds the lock can
// re-enter it (when Reentrant is set) without touching the lock file, so
// nested critical sections compose. Separate goroutines use separate
// contexts and therefore contend through the file like separate processes.
type FileLock struct {
	// Path is the lock file location, conventionally "<data file>.lock".
	Path string

	// Reentrant allows nested With calls on the same context chain.
	Reentrant bool

	// Poll is the retry interval while waiting for a busy lock.
	// Zero means 100ms.
	Poll time.Duration
}

type lockKey struct{ path string }

// Held reports whether ctx already owns the lock.
func (l *FileLock) Held(ctx context.Context) bool {
	held, _ := ctx.Value(lockKey{l.Path}).(bool)
	return held
}

// With runs fn while holding the lock.
//
// If ctx already owns the lock, fn runs immediately for a reentrant lock and
// ErrLockHeld is returned otherwise. Acquisition blocks until the lock file
// can be created exclusively or ctx is done.
func (l *FileLock) With(ctx context.Context, fn func(ctx context.Context) error) error {
	if l.Held(ctx) {
		if !l.Reentrant {
			return ErrLockHeld
		}
		return fn(ctx)
	}

	f, err := l.acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(l.Path)
	}()

	return fn(context.WithValue(ctx, lockKey{l.Path}, true))
}

func (l *FileLock) acquire(ctx context.Context) (*os.File, error) {
	poll := l.Poll
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}

	for {
		f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for lock %s: %w", l.Path, ctx.Err())
		case <-time.After(poll):
		}
	}
}
