package service

import (
	"context"
	"sync"
	"time"

	"github.com/coursehub/portal-access/internal/repository"
)

// SessionRegistry hands out one SessionManager per session id. Managers are
// created lazily on first sight of a session and restored from the session
// store before first use.
type SessionRegistry struct {
	auth              AuthService
	resolver          CodeResolverService
	limiter           *RateLimiter
	kv                SessionKV
	reps              repository.RepresentativeRepository
	heartbeatInterval time.Duration

	mu       sync.Mutex
	sessions map[string]*SessionManager
}

func NewSessionRegistry(
	auth AuthService,
	resolver CodeResolverService,
	limiter *RateLimiter,
	kv SessionKV,
	reps repository.RepresentativeRepository,
	heartbeatInterval time.Duration,
) *SessionRegistry {
	return &SessionRegistry{
		auth:              auth,
		resolver:          resolver,
		limiter:           limiter,
		kv:                kv,
		reps:              reps,
		heartbeatInterval: heartbeatInterval,
		sessions:          make(map[string]*SessionManager),
	}
}

// Manager returns the session's manager, creating and restoring it when the
// session is new to this instance.
func (r *SessionRegistry) Manager(ctx context.Context, sessionID string) *SessionManager {
	r.mu.Lock()
	m, ok := r.sessions[sessionID]
	if !ok {
		m = NewSessionManager(
			sessionID,
			r.auth,
			r.resolver,
			r.limiter,
			r.kv,
			NewHeartbeatEmitter(r.reps, r.heartbeatInterval),
		)
		r.sessions[sessionID] = m
	}
	r.mu.Unlock()

	// Every caller funnels through the manager's one-shot restore, so a
	// request that raced the creating request waits instead of seeing the
	// manager mid-restore.
	m.initialize(ctx)
	return m
}

// Drop removes a session's manager and stops its heartbeat.
func (r *SessionRegistry) Drop(sessionID string) {
	r.mu.Lock()
	m, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	if ok && m.heartbeat != nil {
		m.heartbeat.Stop()
	}
}

// Shutdown stops every live heartbeat. Called once on server exit.
func (r *SessionRegistry) Shutdown() {
	r.mu.Lock()
	managers := make([]*SessionManager, 0, len(r.sessions))
	for _, m := range r.sessions {
		managers = append(managers, m)
	}
	r.sessions = make(map[string]*SessionManager)
	r.mu.Unlock()
	for _, m := range managers {
		if m.heartbeat != nil {
			m.heartbeat.Stop()
		}
	}
}
