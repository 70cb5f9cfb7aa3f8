package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coursehub/portal-access/internal/observability"
	"github.com/coursehub/portal-access/internal/repository"
)

// HeartbeatEmitter keeps a signed-in representative's last-seen timestamp
// fresh. One write fires immediately on Start, then one per interval until
// Stop. Write failures are logged and swallowed; the next tick retries.
type HeartbeatEmitter struct {
	reps     repository.RepresentativeRepository
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHeartbeatEmitter(reps repository.RepresentativeRepository, interval time.Duration) *HeartbeatEmitter {
	return &HeartbeatEmitter{
		reps:     reps,
		interval: interval,
		now:      time.Now,
	}
}

// Start begins emitting for repID. A second Start replaces the previous
// emission loop, so at most one runs per emitter.
func (h *HeartbeatEmitter) Start(repID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	h.cancel = cancel
	h.done = done

	go h.run(ctx, repID, done)
}

// Stop halts emission and waits for the loop to exit. No final write is
// made; staleness marks the representative offline.
func (h *HeartbeatEmitter) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
}

func (h *HeartbeatEmitter) stopLocked() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
	h.cancel = nil
	h.done = nil
}

func (h *HeartbeatEmitter) run(ctx context.Context, repID string, done chan struct{}) {
	defer close(done)

	h.write(ctx, repID)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.write(ctx, repID)
		}
	}
}

func (h *HeartbeatEmitter) write(ctx context.Context, repID string) {
	start := h.now()
	err := h.reps.UpdateLastSeen(repID, start)
	latency := h.now().Sub(start)
	if err != nil {
		slog.Debug("heartbeat write failed", "rep_id", repID, "error", err)
		observability.RecordHeartbeatWrite("error", latency)
		return
	}
	observability.RecordHeartbeatWrite("ok", latency)
}

// PresenceStatus classifies a representative's liveness from the last
// heartbeat: "online" within the freshness window, "offline" past it,
// "never" when no heartbeat was ever recorded.
func PresenceStatus(lastSeen *time.Time, now time.Time, freshness time.Duration) string {
	if lastSeen == nil {
		return "never"
	}
	if now.Sub(*lastSeen) <= freshness {
		return "online"
	}
	return "offline"
}
