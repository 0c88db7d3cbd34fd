// Package lock provides per-key mutual exclusion for multi-step provisioning.
// Acquisition never waits: a held key is reported as domain.ErrOrderBusy.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bsm/redislock"

	"provisioner/internal/domain"
	"provisioner/internal/observability"
)

// Redis is a lease held in Redis, shared by every api replica. The lease is
// refreshed every TTL/3 until released, so long provisioning runs keep it.
type Redis struct {
	Client *redislock.Client
	TTL    time.Duration
}

func (l *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	ttl := l.TTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	lk, err := l.Client.Obtain(ctx, "lock:"+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		observability.LockContention.WithLabelValues("redis").Inc()
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderBusy, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	stop := keepAlive(ttl/3, func(ctx context.Context) error {
		return lk.Refresh(ctx, ttl, nil)
	}, func(err error) {
		slog.Warn("lock refresh failed", "key", key, "err", err)
	})
	return func() {
		stop()
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = lk.Release(releaseCtx)
	}, nil
}

// keepAlive calls refresh every interval until the returned stop is called.
// stop waits for an in-flight refresh and is safe to call more than once.
func keepAlive(interval time.Duration, refresh func(context.Context) error, onErr func(error)) func() {
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				err := refresh(ctx)
				cancel()
				if err != nil {
					onErr(err)
					if errors.Is(err, redislock.ErrNotObtained) {
						// lease lost; nothing left to extend
						return
					}
				}
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-exited
	}
}

// Local is an in-process lock for single-instance runs and tests.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local { return &Local{held: map[string]struct{}{}} }

func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]struct{}{}
	}
	if _, busy := l.held[key]; busy {
		observability.LockContention.WithLabelValues("local").Inc()
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderBusy, key)
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
