package health

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type CheckResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

type Checker interface {
	Check(ctx context.Context) CheckResult
}

// ProbeRunner fans readiness checks out under a shared timeout and caches
// the combined verdict so probe storms do not hammer the dependencies.
type ProbeRunner struct {
	timeout  time.Duration
	cacheTTL time.Duration
	checkers []Checker

	mu        sync.Mutex
	cachedAt  time.Time
	cachedOK  bool
	cachedRes []CheckResult
}

func NewProbeRunner(timeout, cacheTTL time.Duration, checkers ...Checker) *ProbeRunner {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ProbeRunner{timeout: timeout, cacheTTL: cacheTTL, checkers: checkers}
}

func (p *ProbeRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cacheTTL > 0 && time.Since(p.cachedAt) < p.cacheTTL && p.cachedRes != nil {
		return p.cachedOK, p.cachedRes
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	results := make([]CheckResult, 0, len(p.checkers))
	ok := true
	for _, c := range p.checkers {
		res := c.Check(ctx)
		if !res.Healthy {
			ok = false
		}
		results = append(results, res)
	}

	p.cachedAt = time.Now()
	p.cachedOK = ok
	p.cachedRes = results
	return ok, results
}

type DatabaseChecker struct{ DB *gorm.DB }

func (c DatabaseChecker) Check(ctx context.Context) CheckResult {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return CheckResult{Name: "database", Healthy: false, Error: err.Error()}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return CheckResult{Name: "database", Healthy: false, Error: err.Error()}
	}
	return CheckResult{Name: "database", Healthy: true}
}

type RedisChecker struct{ Client redis.UniversalClient }

func (c RedisChecker) Check(ctx context.Context) CheckResult {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return CheckResult{Name: "redis", Healthy: false, Error: err.Error()}
	}
	return CheckResult{Name: "redis", Healthy: true}
}
