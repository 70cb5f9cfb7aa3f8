package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coursehub/portal-access/internal/domain"
	"github.com/coursehub/portal-access/internal/observability"
	"github.com/coursehub/portal-access/internal/security"

	"golang.org/x/sync/singleflight"
)

// Result is the outcome shape every session operation hands back to the
// transport layer. Error holds end-user text only; internals stay in logs.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	RepName string `json:"rep_name,omitempty"`

	// Code classifies the failure for the transport layer. Never serialized.
	Code string `json:"-"`
}

const (
	ResultOK                 = "ok"
	ResultInvalidInput       = "invalid_input"
	ResultInvalidCredentials = "invalid_credentials"
	ResultCodeNotFound       = "code_not_found"
	ResultRateLimited        = "rate_limited"
	ResultSystemError        = "system_error"
)

const (
	msgInvalidCredentials = "Invalid credentials"
	msgInvalidCode        = "Invalid access code"
	msgCheckWithRep       = "Incorrect code. Please check with your representative."
	msgSystemError        = "System error. Please try again later."
	msgInvalidEmail       = "Enter a valid email address."
	msgCodeTooShort       = "Enter a valid access code."
)

func msgTooManyAttempts(minutes int) string {
	return fmt.Sprintf("Too many attempts. Please wait %d minutes.", minutes)
}

// SessionView is the read model exposed to the client.
type SessionView struct {
	User            *domain.Representative `json:"user,omitempty"`
	AccessCode      string                 `json:"access_code,omitempty"`
	ActiveRepID     string                 `json:"active_rep_id,omitempty"`
	IsAuthenticated bool                   `json:"is_authenticated"`
	HasAccessCode   bool                   `json:"has_access_code"`
	Loading         bool                   `json:"loading"`
}

// SessionManager owns one client's identity state machine: Loading until
// the stored identity is resolved, then Guest, RepresentativeSession or
// AccessCodeSession. All transitions hold the mutex; remote calls happen
// between the rate-limit check and any state mutation, never before the
// check.
type SessionManager struct {
	sessionID string
	auth      AuthService
	resolver  CodeResolverService
	limiter   *RateLimiter
	kv        SessionKV
	heartbeat *HeartbeatEmitter

	mu       sync.Mutex
	identity domain.Identity
	loading  bool

	restoreOnce sync.Once
	group       singleflight.Group
}

func NewSessionManager(
	sessionID string,
	auth AuthService,
	resolver CodeResolverService,
	limiter *RateLimiter,
	kv SessionKV,
	heartbeat *HeartbeatEmitter,
) *SessionManager {
	return &SessionManager{
		sessionID: sessionID,
		auth:      auth,
		resolver:  resolver,
		limiter:   limiter,
		kv:        kv,
		heartbeat: heartbeat,
		loading:   true,
	}
}

// initialize restores the persisted identity exactly once per manager.
// Concurrent first requests for the same session block here until the
// restore is done, so none of them can observe a stale Loading snapshot.
func (m *SessionManager) initialize(ctx context.Context) {
	m.restoreOnce.Do(func() {
		m.Restore(ctx)
		m.ResolveIdentity(ctx)
	})
}

// Restore loads the persisted access-code identity for this session. A
// cached owner id short-circuits resolution; otherwise ResolveIdentity
// performs it lazily, once per code. Only the code and its own owner are
// ever read back; the derived active rep id is recomputed, never stored.
func (m *SessionManager) Restore(ctx context.Context) {
	code, err := m.kv.Get(ctx, m.sessionID, kvKeyAccessCode)
	if err != nil {
		slog.Debug("session store read failed", "key", kvKeyAccessCode, "error", err)
		return
	}
	if code == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identity.Code = code
	if cached, err := m.kv.Get(ctx, m.sessionID, kvKeyCodeOwnerID); err == nil && cached != "" {
		m.identity.CodeOwner = &domain.CodeOwner{RepID: cached}
	}
}

// ResolveIdentity finishes the Loading state. When a restored code has no
// cached owner yet, it is resolved exactly once per code; concurrent calls
// for the same code share one lookup.
func (m *SessionManager) ResolveIdentity(ctx context.Context) {
	m.mu.Lock()
	code := m.identity.Code
	needsResolve := code != "" && m.identity.CodeOwner == nil
	m.mu.Unlock()

	if needsResolve {
		v, err, _ := m.group.Do(code, func() (any, error) {
			owner, _, err := m.resolver.Resolve(ctx, code)
			return owner, err
		})
		if err != nil {
			slog.Warn("stored access code did not resolve", "error", err)
		} else {
			m.mu.Lock()
			if m.identity.Code == code {
				m.identity.CodeOwner = v.(*domain.CodeOwner)
				m.persistCodeOwner(ctx, m.identity.CodeOwner)
			}
			m.mu.Unlock()
		}
	}

	m.mu.Lock()
	m.loading = false
	m.mu.Unlock()
}

// AttachRepresentative installs an already-authenticated representative,
// e.g. when a valid session token arrives on a fresh session. Starts the
// liveness heartbeat like a regular login.
func (m *SessionManager) AttachRepresentative(_ context.Context, rep *domain.Representative) {
	m.mu.Lock()
	m.identity.Representative = rep
	m.loading = false
	m.mu.Unlock()
	if m.heartbeat != nil {
		m.heartbeat.Start(rep.ID)
	}
}

// Login authenticates a representative. The rate-limit check strictly
// precedes the credential-store call; only a definitive credential
// rejection consumes an attempt.
func (m *SessionManager) Login(ctx context.Context, email, password string) Result {
	sanitized, ok := security.SanitizeEmail(email)
	if !ok {
		return Result{Success: false, Error: msgInvalidEmail, Code: ResultInvalidInput}
	}

	decision := m.limiter.Check(ctx, KeyRepLogin, m.sessionID)
	if !decision.Allowed {
		observability.RecordLogin("rate_limited")
		return Result{Success: false, Error: msgTooManyAttempts(decision.RetryAfterMinutes), Code: ResultRateLimited}
	}

	rep, err := m.auth.SignIn(ctx, sanitized, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			m.limiter.Record(ctx, KeyRepLogin, m.sessionID)
			observability.RecordLogin("invalid_credentials")
			return Result{Success: false, Error: msgInvalidCredentials, Code: ResultInvalidCredentials}
		}
		slog.Error("credential store unavailable during login", "error", err)
		observability.RecordLogin("system_error")
		return Result{Success: false, Error: msgSystemError, Code: ResultSystemError}
	}

	m.limiter.Reset(ctx, KeyRepLogin, m.sessionID)
	m.mu.Lock()
	m.identity.Representative = rep
	m.loading = false
	m.mu.Unlock()
	if m.heartbeat != nil {
		m.heartbeat.Start(rep.ID)
	}
	observability.RecordLogin("success")
	return Result{Success: true, RepName: rep.Name, Code: ResultOK}
}

// Logout ends the representative session. A separately stored access code
// is left untouched and resumes as the active identity if present.
func (m *SessionManager) Logout(_ context.Context) Result {
	if m.heartbeat != nil {
		m.heartbeat.Stop()
	}
	m.mu.Lock()
	m.identity.Representative = nil
	m.mu.Unlock()
	return Result{Success: true, Code: ResultOK}
}

// EnterCode resolves a student access code. Fast-path codes bypass the rate
// limiter entirely; everything else pays the check-resolve-record sequence.
func (m *SessionManager) EnterCode(ctx context.Context, raw string) Result {
	code, err := SanitizeCode(raw)
	if err != nil {
		return Result{Success: false, Error: msgCodeTooShort, Code: ResultInvalidInput}
	}

	if owner, ok := m.resolver.FastPath(code); ok {
		observability.RecordCodeEntry("success", "fast_path")
		m.adoptCode(ctx, code, owner)
		return Result{Success: true, RepName: owner.RepName, Code: ResultOK}
	}

	decision := m.limiter.Check(ctx, KeyStudentCode, m.sessionID)
	if !decision.Allowed {
		observability.RecordCodeEntry("rate_limited", "none")
		return Result{Success: false, Error: msgTooManyAttempts(decision.RetryAfterMinutes), Code: ResultRateLimited}
	}

	owner, path, err := m.resolver.Resolve(ctx, code)
	switch {
	case err == nil:
		m.limiter.Reset(ctx, KeyStudentCode, m.sessionID)
		observability.RecordCodeEntry("success", path)
		m.adoptCode(ctx, code, owner)
		return Result{Success: true, RepName: owner.RepName, Code: ResultOK}
	case errors.Is(err, ErrCodeNotFound):
		attempts := m.limiter.Record(ctx, KeyStudentCode, m.sessionID)
		observability.RecordCodeEntry("not_found", path)
		if attempts >= 2 {
			return Result{Success: false, Error: msgCheckWithRep, Code: ResultCodeNotFound}
		}
		return Result{Success: false, Error: msgInvalidCode, Code: ResultCodeNotFound}
	default:
		// Infra failure: no attempt is charged and the message never says
		// the code was wrong.
		slog.Error("code resolution unavailable", "error", err)
		observability.RecordCodeEntry("system_error", "none")
		return Result{Success: false, Error: msgSystemError, Code: ResultSystemError}
	}
}

// ExitCode drops the access-code identity without touching an
// authenticated representative session.
func (m *SessionManager) ExitCode(ctx context.Context) Result {
	m.mu.Lock()
	m.identity.Code = ""
	m.identity.CodeOwner = nil
	if err := m.kv.Remove(ctx, m.sessionID, kvKeyAccessCode); err != nil {
		slog.Debug("session store remove failed", "key", kvKeyAccessCode, "error", err)
	}
	if err := m.kv.Remove(ctx, m.sessionID, kvKeyCodeOwnerID); err != nil {
		slog.Debug("session store remove failed", "key", kvKeyCodeOwnerID, "error", err)
	}
	m.mu.Unlock()
	return Result{Success: true, Code: ResultOK}
}

func (m *SessionManager) Snapshot() SessionView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return SessionView{
		User:            m.identity.Representative,
		AccessCode:      m.identity.Code,
		ActiveRepID:     m.identity.ActiveRepID(),
		IsAuthenticated: m.identity.IsAuthenticated(),
		HasAccessCode:   m.identity.HasAccessCode(),
		Loading:         m.loading,
	}
}

func (m *SessionManager) adoptCode(ctx context.Context, code string, owner *domain.CodeOwner) {
	m.mu.Lock()
	m.identity.Code = code
	m.identity.CodeOwner = owner
	m.loading = false
	if err := m.kv.Set(ctx, m.sessionID, kvKeyAccessCode, code); err != nil {
		slog.Debug("session store write failed", "key", kvKeyAccessCode, "error", err)
	}
	m.persistCodeOwner(ctx, owner)
	m.mu.Unlock()

	// Best-effort anonymous credential-store session. Detached on purpose;
	// the code-entry flow never waits on it or sees its failure.
	go func() {
		bg, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := m.auth.SignInAnonymously(bg); err != nil {
			slog.Debug("anonymous session establishment failed", "error", err)
		}
	}()
}

// persistCodeOwner caches the resolved owner of the stored access code so a
// later Restore can skip the lookup. It records who owns the code, nothing
// about the representative session. Caller holds the mutex.
func (m *SessionManager) persistCodeOwner(ctx context.Context, owner *domain.CodeOwner) {
	if owner == nil {
		return
	}
	if err := m.kv.Set(ctx, m.sessionID, kvKeyCodeOwnerID, owner.RepID); err != nil {
		slog.Debug("session store write failed", "key", kvKeyCodeOwnerID, "error", err)
	}
}
