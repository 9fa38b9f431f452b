package persistence

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ericvoltolin/xc-mcp/internal/domain"
)

var errLockHeld = errors.New("lock held by another writer")

// LockPolicy bounds cooperative lock acquisition.
type LockPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// StaleAfter breaks lock files left behind by a crashed writer.
	StaleAfter time.Duration
}

// DefaultLockPolicy retries a handful of times within well under a second.
func DefaultLockPolicy() LockPolicy {
	return LockPolicy{
		MaxTries:        6,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     200 * time.Millisecond,
		StaleAfter:      30 * time.Second,
	}
}

// acquireLock creates path exclusively, retrying with jittered exponential
// backoff while another writer holds it. The returned func releases the lock.
func acquireLock(ctx context.Context, path string, policy LockPolicy) (func(), error) {
	attempt := func() (struct{}, error) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, domain.FilePermissions)
		if err == nil {
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
			_ = f.Close()
			return struct{}{}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return struct{}{}, backoff.Permanent(err)
		}
		breakStaleLock(path, policy.StaleAfter)
		return struct{}{}, errLockHeld
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialInterval
	b.MaxInterval = policy.MaxInterval
	b.RandomizationFactor = 0.5
	b.Multiplier = 2

	tries := policy.MaxTries
	if tries == 0 {
		tries = 1
	}
	if _, err := backoff.Retry(ctx, attempt, backoff.WithBackOff(b), backoff.WithMaxTries(tries)); err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w: %v", path, domain.ErrIOFailure, err)
	}
	return func() { _ = os.Remove(path) }, nil
}

func breakStaleLock(path string, staleAfter time.Duration) {
	if staleAfter <= 0 {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if time.Since(info.ModTime()) > staleAfter {
		_ = os.Remove(path)
	}
}
