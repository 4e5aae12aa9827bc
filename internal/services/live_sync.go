package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kiroku/internal/core"
	"kiroku/internal/store"
)

// SyncState is the synchronizer's position in its persist cycle.
type SyncState int

const (
	// SyncIdle: nothing recorded since the last persist settled.
	SyncIdle SyncState = iota
	// SyncDirty: local changes exist and the debounce timer is armed.
	SyncDirty
	// SyncSyncing: a persist is in flight.
	SyncSyncing
	// SyncSynced: the persist succeeded; shown briefly before returning to idle.
	SyncSynced
)

func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncDirty:
		return "dirty"
	case SyncSyncing:
		return "syncing"
	case SyncSynced:
		return "synced"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// LiveSyncConfig holds configuration for a live session synchronizer
type LiveSyncConfig struct {
	// Debounce is how long after the last mutation the persist fires (default: 1s)
	Debounce time.Duration

	// FeedbackWindow is how long the synced state is shown before idle (default: 2s)
	FeedbackWindow time.Duration

	// OnError observes non-fatal persist failures; may be nil
	OnError func(error)
}

// DefaultLiveSyncConfig returns sensible defaults
func DefaultLiveSyncConfig() LiveSyncConfig {
	return LiveSyncConfig{
		Debounce:       1 * time.Second,
		FeedbackWindow: 2 * time.Second,
	}
}

// LiveSync persists one user's ongoing session with a debounce. Every
// mutation replaces the pending snapshot and re-arms the timer; when the
// timer fires the full snapshot is written through the store in one shot.
// A failed persist returns to dirty and retries on the next debounce.
type LiveSync struct {
	writer store.SessionWriter
	userID string
	config LiveSyncConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	fireCh   chan struct{}
	settleCh chan struct{}

	state      SyncState
	snapshot   core.Session
	hasSession bool
	dirtyAgain bool
	debounce   *time.Timer
	feedback   *time.Timer
	quiet      chan struct{}
}

func NewLiveSync(writer store.SessionWriter, userID string, config LiveSyncConfig) *LiveSync {
	if config.Debounce <= 0 {
		config.Debounce = DefaultLiveSyncConfig().Debounce
	}
	if config.FeedbackWindow <= 0 {
		config.FeedbackWindow = DefaultLiveSyncConfig().FeedbackWindow
	}
	quiet := make(chan struct{})
	close(quiet) // quiescent until the first mutation
	return &LiveSync{
		writer:   writer,
		userID:   userID,
		config:   config,
		fireCh:   make(chan struct{}, 1),
		settleCh: make(chan struct{}, 1),
		quiet:    quiet,
	}
}

// Start begins the persist loop. Returns an error if already running.
func (ls *LiveSync) Start(ctx context.Context) error {
	ls.mu.Lock()
	if ls.running {
		ls.mu.Unlock()
		return fmt.Errorf("live sync is already running")
	}
	ls.running = true
	ls.stopCh = make(chan struct{})
	ls.doneCh = make(chan struct{})
	ls.mu.Unlock()

	go ls.runLoop(ctx)

	slog.InfoContext(ctx, "Live sync started",
		"user_id", ls.userID,
		"debounce", ls.config.Debounce)

	return nil
}

// Stop gracefully stops the synchronizer and waits for completion. It does
// not flush pending changes; call Wait first when they must land.
func (ls *LiveSync) Stop(ctx context.Context) error {
	ls.mu.Lock()
	if !ls.running {
		ls.mu.Unlock()
		return nil
	}
	if ls.debounce != nil {
		ls.debounce.Stop()
	}
	if ls.feedback != nil {
		ls.feedback.Stop()
	}
	ls.mu.Unlock()

	close(ls.stopCh)

	select {
	case <-ls.doneCh:
		slog.InfoContext(ctx, "Live sync stopped", "user_id", ls.userID)
	case <-ctx.Done():
		slog.WarnContext(ctx, "Live sync stop timed out", "user_id", ls.userID)
		return ctx.Err()
	}

	ls.mu.Lock()
	ls.running = false
	ls.mu.Unlock()

	return nil
}

// IsRunning returns whether the synchronizer is currently running
func (ls *LiveSync) IsRunning() bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.running
}

// State returns the current sync state.
func (ls *LiveSync) State() SyncState {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.state
}

// Record replaces the pending snapshot with s and re-arms the debounce.
// Mutations arriving while a persist is in flight re-enter dirty once it
// completes, so the latest snapshot always lands.
func (ls *LiveSync) Record(s core.Session) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	ls.snapshot = s.Clone()
	ls.hasSession = true

	switch ls.state {
	case SyncIdle, SyncSynced:
		if ls.feedback != nil {
			ls.feedback.Stop()
		}
		ls.state = SyncDirty
		ls.quiet = make(chan struct{})
		ls.armDebounceLocked()
	case SyncDirty:
		ls.armDebounceLocked()
	case SyncSyncing:
		ls.dirtyAgain = true
	}
}

// Snapshot returns the current local session, which may be ahead of the store.
func (ls *LiveSync) Snapshot() (core.Session, bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if !ls.hasSession {
		return core.Session{}, false
	}
	return ls.snapshot.Clone(), true
}

// Wait blocks until no persist is pending or in flight. It does not wait
// out the synced feedback window; a settled machine is quiescent.
func (ls *LiveSync) Wait(ctx context.Context) error {
	for {
		ls.mu.Lock()
		if ls.state == SyncIdle || ls.state == SyncSynced {
			ls.mu.Unlock()
			return nil
		}
		quiet := ls.quiet
		ls.mu.Unlock()

		select {
		case <-quiet:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (ls *LiveSync) armDebounceLocked() {
	if ls.debounce != nil {
		ls.debounce.Stop()
	}
	ls.debounce = time.AfterFunc(ls.config.Debounce, func() {
		select {
		case ls.fireCh <- struct{}{}:
		default:
		}
	})
}

func (ls *LiveSync) runLoop(ctx context.Context) {
	defer close(ls.doneCh)

	for {
		select {
		case <-ls.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ls.fireCh:
			ls.persist(ctx)
		case <-ls.settleCh:
			ls.settle()
		}
	}
}

func (ls *LiveSync) persist(ctx context.Context) {
	ls.mu.Lock()
	if ls.state != SyncDirty {
		ls.mu.Unlock()
		return
	}
	ls.state = SyncSyncing
	ls.dirtyAgain = false
	snap := ls.snapshot.Clone()
	ls.mu.Unlock()

	err := ls.writer.UpsertSession(ctx, ls.userID, snap)

	ls.mu.Lock()
	if err != nil {
		slog.WarnContext(ctx, "Live sync persist failed",
			"user_id", ls.userID,
			"session_id", snap.ID,
			"error", err)
		ls.state = SyncDirty
		ls.armDebounceLocked()
		onError := ls.config.OnError
		ls.mu.Unlock()
		if onError != nil {
			onError(err)
		}
		return
	}

	if ls.dirtyAgain {
		ls.state = SyncDirty
		ls.dirtyAgain = false
		ls.armDebounceLocked()
		ls.mu.Unlock()
		return
	}

	ls.state = SyncSynced
	close(ls.quiet)
	if ls.feedback != nil {
		ls.feedback.Stop()
	}
	ls.feedback = time.AfterFunc(ls.config.FeedbackWindow, func() {
		select {
		case ls.settleCh <- struct{}{}:
		default:
		}
	})
	ls.mu.Unlock()

	slog.DebugContext(ctx, "Live session persisted",
		"user_id", ls.userID,
		"session_id", snap.ID)
}

func (ls *LiveSync) settle() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.state == SyncSynced {
		ls.state = SyncIdle
	}
}
