package loadgen

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Config drives synthetic portal traffic against a running instance. Only
// unauthenticated surfaces are exercised; the point is telemetry volume,
// not correctness.
type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
}

type Result struct {
	TotalRequests int64
	Failures      int64
	StatusClasses map[string]int64
}

type request struct {
	method string
	path   string
	body   string
}

func Run(ctx context.Context, cfg Config) (Result, error) {
	if cfg.BaseURL == "" {
		return Result{}, fmt.Errorf("base url is required")
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	profile := normalizeProfile(cfg.Profile)

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	client := &http.Client{Timeout: 10 * time.Second}
	rng := rand.New(rand.NewSource(cfg.Seed))
	var rngMu sync.Mutex

	var total, failures int64
	var classMu sync.Mutex
	classes := make(map[string]int64)

	ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
	defer ticker.Stop()
	work := make(chan request)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range work {
				atomic.AddInt64(&total, 1)
				status, err := perform(ctx, client, cfg.BaseURL, req)
				if err != nil {
					atomic.AddInt64(&failures, 1)
					continue
				}
				class := classifyStatusClass(status)
				classMu.Lock()
				classes[class]++
				classMu.Unlock()
				if class == "5xx" {
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			rngMu.Lock()
			req := pickRequest(rng, profile)
			rngMu.Unlock()
			select {
			case work <- req:
			case <-ctx.Done():
				break loop
			}
		}
	}
	close(work)
	wg.Wait()

	return Result{TotalRequests: total, Failures: failures, StatusClasses: classes}, nil
}

func perform(ctx context.Context, client *http.Client, baseURL string, req request) (int, error) {
	var body *bytes.Reader
	if req.body != "" {
		body = bytes.NewReader([]byte(req.body))
	} else {
		body = bytes.NewReader(nil)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, strings.TrimRight(baseURL, "/")+req.path, body)
	if err != nil {
		return 0, err
	}
	if req.body != "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func pickRequest(rng *rand.Rand, profile string) request {
	login := request{method: http.MethodPost, path: "/api/v1/auth/login", body: fmt.Sprintf(`{"email":"load%d@example.com","password":"wrong"}`, rng.Intn(1000))}
	code := request{method: http.MethodPost, path: "/api/v1/code", body: fmt.Sprintf(`{"code":"LOAD%05d"}`, rng.Intn(100000))}
	session := request{method: http.MethodGet, path: "/api/v1/session"}
	health := request{method: http.MethodGet, path: "/health/live"}

	switch profile {
	case "auth":
		return login
	case "code":
		return code
	default:
		switch rng.Intn(4) {
		case 0:
			return login
		case 1:
			return code
		case 2:
			return session
		default:
			return health
		}
	}
}

func normalizeProfile(profile string) string {
	profile = strings.ToLower(strings.TrimSpace(profile))
	switch profile {
	case "auth", "code", "mixed":
		return profile
	default:
		return "mixed"
	}
}

func classifyStatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return "other"
	}
}
