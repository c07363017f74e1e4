// Package persistence flushes in-memory stores to sqlite on a timer and on
// shutdown.
package persistence

import (
	"context"
	"log"
	"sync"
	"time"
)

// Target is anything that can write its current state to the database.
type Target struct {
	Name     string
	Snapshot func(ctx context.Context) error
}

// Snapshotter periodically persists every registered target. Snapshots are
// full-state writes, so a missed tick costs nothing but recency.
type Snapshotter struct {
	interval time.Duration
	targets  []Target

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func New(interval time.Duration, targets ...Target) *Snapshotter {
	return &Snapshotter{
		interval: interval,
		targets:  targets,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background flush loop.
func (s *Snapshotter) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		log.Printf("persistence: snapshotting every %s", s.interval)
		for {
			select {
			case <-ticker.C:
				s.Flush(context.Background())
			case <-s.stop:
				return
			}
		}
	}()
}

// Flush writes every target once. Per-target failures are logged and do not
// block the remaining targets.
func (s *Snapshotter) Flush(ctx context.Context) {
	for _, t := range s.targets {
		if err := t.Snapshot(ctx); err != nil {
			log.Printf("persistence: snapshot of %s failed: %v", t.Name, err)
		}
	}
}

// Close stops the loop and performs one final flush so a clean shutdown
// never loses state.
func (s *Snapshotter) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.Flush(ctx)
	})
}
