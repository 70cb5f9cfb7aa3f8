package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/coursehub/portal-access/internal/domain"
	"github.com/coursehub/portal-access/internal/repository"
)

var (
	ErrCodeTooShort        = errors.New("access code too short")
	ErrCodeNotFound        = errors.New("access code not found")
	ErrResolverUnavailable = errors.New("code resolution unavailable")
)

// Access codes are fixed at nine characters. Sanitization truncates longer
// input rather than rejecting it so pasted codes with trailing garbage
// still work; anything shorter than the minimum is a validation failure,
// never a lookup.
const (
	codeMaxLength = 9
	codeMinLength = 6
)

// SanitizeCode uppercases, strips non-alphanumerics and bounds the length.
func SanitizeCode(raw string) (string, error) {
	var b strings.Builder
	for _, c := range strings.ToUpper(strings.TrimSpace(raw)) {
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
		if b.Len() == codeMaxLength {
			break
		}
	}
	code := b.String()
	if len(code) < codeMinLength {
		return "", ErrCodeTooShort
	}
	return code, nil
}

// codeLookupStrategy is one layer of the resolution chain. A strategy
// answers with the owner, ErrCodeNotFound, or a system error; the resolver
// treats the latter two differently.
type codeLookupStrategy interface {
	name() string
	lookup(ctx context.Context, code string) (*domain.CodeOwner, error)
}

// docKeyLookup fetches the access-code record by its deterministic row key.
// Preferred path: O(1), no scan.
type docKeyLookup struct{ codes repository.AccessCodeRepository }

func (s *docKeyLookup) name() string { return "doc_key" }

func (s *docKeyLookup) lookup(_ context.Context, code string) (*domain.CodeOwner, error) {
	rec, err := s.codes.GetByDocKey(domain.AccessCodeDocKey(code))
	if err != nil {
		if errors.Is(err, repository.ErrAccessCodeNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return &domain.CodeOwner{RepID: rec.RepID, RepName: rec.RepName}, nil
}

// indexedLookup queries the code column directly, covering records created
// before the doc-key convention existed.
type indexedLookup struct{ codes repository.AccessCodeRepository }

func (s *indexedLookup) name() string { return "indexed" }

func (s *indexedLookup) lookup(_ context.Context, code string) (*domain.CodeOwner, error) {
	rec, err := s.codes.FindByCode(code)
	if err != nil {
		if errors.Is(err, repository.ErrAccessCodeNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return &domain.CodeOwner{RepID: rec.RepID, RepName: rec.RepName}, nil
}

// legacyLookup matches the representative row itself, for reps whose code
// was never migrated into the access_codes index.
type legacyLookup struct{ reps repository.RepresentativeRepository }

func (s *legacyLookup) name() string { return "legacy" }

func (s *legacyLookup) lookup(_ context.Context, code string) (*domain.CodeOwner, error) {
	rep, err := s.reps.FindByAccessCode(code)
	if err != nil {
		if errors.Is(err, repository.ErrRepresentativeNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return &domain.CodeOwner{RepID: rep.ID, RepName: rep.Name}, nil
}

// CodeResolver resolves a sanitized access code to its owning
// representative through an ordered strategy chain. The fast-path table is
// outside the chain on purpose: callers consult it before spending any
// rate-limit budget.
type CodeResolver struct {
	fastPath   map[string]domain.CodeOwner
	strategies []codeLookupStrategy
	missCache  CodeMissCache
	missTTL    time.Duration
}

func NewCodeResolver(
	codes repository.AccessCodeRepository,
	reps repository.RepresentativeRepository,
	fastPath map[string]domain.CodeOwner,
	missCache CodeMissCache,
	missTTL time.Duration,
) *CodeResolver {
	if missCache == nil {
		missCache = NewNoopCodeMissCache()
	}
	return &CodeResolver{
		fastPath: fastPath,
		strategies: []codeLookupStrategy{
			&docKeyLookup{codes: codes},
			&indexedLookup{codes: codes},
			&legacyLookup{reps: reps},
		},
		missCache: missCache,
		missTTL:   missTTL,
	}
}

// FastPath resolves pre-provisioned codes from the static table without any
// remote call.
func (r *CodeResolver) FastPath(code string) (*domain.CodeOwner, bool) {
	owner, ok := r.fastPath[code]
	if !ok {
		return nil, false
	}
	return &owner, true
}

// Resolve walks the strategy chain until one layer produces an owner. A
// layer failing with a system error is skipped, not surfaced; only when
// every layer errors does the caller see ErrResolverUnavailable instead of
// ErrCodeNotFound, so outages are never reported as a wrong code.
func (r *CodeResolver) Resolve(ctx context.Context, code string) (*domain.CodeOwner, string, error) {
	if cached, err := r.missCache.Contains(ctx, code); err == nil && cached {
		return nil, "miss_cache", ErrCodeNotFound
	}

	failures := 0
	for _, strategy := range r.strategies {
		owner, err := strategy.lookup(ctx, code)
		if err == nil {
			return owner, strategy.name(), nil
		}
		if errors.Is(err, ErrCodeNotFound) {
			continue
		}
		failures++
		slog.Warn("code lookup strategy failed", "strategy", strategy.name(), "error", err)
	}
	if failures == len(r.strategies) {
		return nil, "none", ErrResolverUnavailable
	}
	// Definitive miss; remember it briefly so repeated guesses of the same
	// wrong code stop hitting the store. System errors are never cached.
	if err := r.missCache.Add(ctx, code, r.missTTL); err != nil {
		slog.Debug("code miss cache write failed", "error", err)
	}
	return nil, "none", ErrCodeNotFound
}
