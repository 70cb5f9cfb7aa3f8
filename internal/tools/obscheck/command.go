package obscheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/coursehub/portal-access/internal/tools/common"
	"github.com/coursehub/portal-access/internal/tools/loadgen"
	"github.com/coursehub/portal-access/internal/tools/ui"
)

// portalCounters are the domain counters the service emits on the traffic
// obscheck generates. Exported to Prometheus they carry the _total suffix.
var portalCounters = []string{
	"auth_login_attempts_total",
	"access_code_entry_attempts_total",
	"ratelimit_decisions_total",
}

// requestHistogram is the otelhttp server histogram; its buckets carry the
// exemplars that tie a metric sample back to a trace.
const requestHistogram = "http_server_request_duration_seconds_bucket"

type options struct {
	grafanaURL      string
	grafanaUser     string
	grafanaPassword string
	serviceName     string
	window          time.Duration
	ci              bool
	baseURL         string
	profile         string
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "obscheck", Short: "Verify metrics, traces and logs correlation"}
	cmd.PersistentFlags().StringVar(&opts.grafanaURL, "grafana-url", "http://localhost:3000", "Grafana base URL")
	cmd.PersistentFlags().StringVar(&opts.grafanaUser, "grafana-user", "admin", "Grafana username")
	cmd.PersistentFlags().StringVar(&opts.grafanaPassword, "grafana-password", "admin", "Grafana password")
	cmd.PersistentFlags().StringVar(&opts.serviceName, "service-name", "portal-access", "OTel service name")
	cmd.PersistentFlags().DurationVar(&opts.window, "window", 20*time.Minute, "query lookback window")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "portal base URL for traffic")
	cmd.PersistentFlags().StringVar(&opts.profile, "profile", "mixed", "traffic profile: auth, code or mixed")
	cmd.AddCommand(newRunCommand(opts))
	return cmd
}

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Generate portal traffic, then verify counters, exemplars, trace and log correlation",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := execute(opts, "obscheck run", func(ctx context.Context) ([]string, error) {
				g := newGrafanaClient(*opts)

				lgRes, err := loadgen.Run(ctx, loadgen.Config{
					BaseURL:     opts.baseURL,
					Profile:     opts.profile,
					Duration:    6 * time.Second,
					RPS:         20,
					Concurrency: 6,
					Seed:        42,
				})
				if err != nil {
					return nil, err
				}
				details := []string{fmt.Sprintf("traffic generated total=%d failures=%d", lgRes.TotalRequests, lgRes.Failures)}
				cutoff := time.Now().Add(-2 * time.Minute)

				// Give the periodic OTLP exporters a cycle to flush.
				time.Sleep(8 * time.Second)

				for _, name := range g.countersForProfile(opts.profile) {
					if err := g.counterPresent(ctx, name); err != nil {
						return details, err
					}
					details = append(details, name+": present")
				}

				traceID, err := g.latestExemplarTraceID(ctx, cutoff)
				if err != nil {
					return details, err
				}
				details = append(details, "exemplar trace_id="+traceID)

				if err := g.traceStored(ctx, traceID); err != nil {
					return details, err
				}
				details = append(details, "tempo trace lookup: ok")

				if err := g.logsCorrelated(ctx, traceID); err != nil {
					return details, err
				}
				details = append(details, "loki trace correlation: ok")
				return details, nil
			})
			if opts.ci {
				common.PrintCIResult(err == nil, "obscheck run", details, err)
			}
			if err != nil {
				os.Exit(4)
			}
			return nil
		},
	}
}

func execute(opts *options, title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()
		return fn(ctx)
	}
	return ui.Run(title, fn)
}

type grafanaClient struct {
	opts   options
	client *http.Client
}

func newGrafanaClient(opts options) *grafanaClient {
	return &grafanaClient{opts: opts, client: &http.Client{Timeout: 20 * time.Second}}
}

func (g *grafanaClient) get(ctx context.Context, path string) ([]byte, error) {
	base, err := url.Parse(g.opts.grafanaURL)
	if err != nil {
		return nil, err
	}
	rel, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.ResolveReference(rel).String(), nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(g.opts.grafanaUser, g.opts.grafanaPassword)
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("grafana request failed: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// countersForProfile narrows the counter checks to what the traffic profile
// can actually move: an auth-only run never touches the code-entry counter.
func (g *grafanaClient) countersForProfile(profile string) []string {
	switch profile {
	case "auth":
		return []string{"auth_login_attempts_total", "ratelimit_decisions_total"}
	case "code":
		return []string{"access_code_entry_attempts_total", "ratelimit_decisions_total"}
	default:
		return portalCounters
	}
}

// counterPresent runs an instant query against Mimir and fails when the
// counter has no samples at all.
func (g *grafanaClient) counterPresent(ctx context.Context, name string) error {
	query := url.QueryEscape(fmt.Sprintf("sum(%s)", name))
	body, err := g.get(ctx, "/api/datasources/proxy/uid/mimir/api/v1/query?query="+query)
	if err != nil {
		return err
	}
	var payload struct {
		Data struct {
			Result []any `json:"result"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return err
	}
	if len(payload.Data.Result) == 0 {
		return fmt.Errorf("counter %s has no samples", name)
	}
	return nil
}

// latestExemplarTraceID scans the request-duration exemplars inside the
// lookback window and returns the newest trace id not older than notBefore.
func (g *grafanaClient) latestExemplarTraceID(ctx context.Context, notBefore time.Time) (string, error) {
	start := time.Now().Add(-g.opts.window).Unix()
	end := time.Now().Unix()
	path := fmt.Sprintf("/api/datasources/proxy/uid/mimir/api/v1/query_exemplars?query=%s&start=%d&end=%d", requestHistogram, start, end)
	body, err := g.get(ctx, path)
	if err != nil {
		return "", err
	}
	var payload struct {
		Data []struct {
			Exemplars []struct {
				Labels    map[string]string `json:"labels"`
				Timestamp float64           `json:"timestamp"`
			} `json:"exemplars"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", err
	}
	var newestID string
	var newestTS float64
	for _, series := range payload.Data {
		for _, e := range series.Exemplars {
			if e.Timestamp <= 0 || int64(e.Timestamp) < notBefore.Unix() {
				continue
			}
			if tid := e.Labels["trace_id"]; len(tid) == 32 && e.Timestamp > newestTS {
				newestTS = e.Timestamp
				newestID = tid
			}
		}
	}
	if newestID == "" {
		return "", fmt.Errorf("no recent trace_id exemplar found")
	}
	return newestID, nil
}

// traceStored polls Tempo until the exemplar's trace is queryable; ingest
// lags the exporter by a few seconds.
func (g *grafanaClient) traceStored(ctx context.Context, traceID string) error {
	path := "/api/datasources/proxy/uid/tempo/api/traces/" + traceID
	var lastErr error
	for i := 0; i < 5; i++ {
		body, err := g.get(ctx, path)
		if err != nil {
			lastErr = err
			time.Sleep(2 * time.Second)
			continue
		}
		var payload struct {
			Batches []any `json:"batches"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return err
		}
		if len(payload.Batches) > 0 {
			return nil
		}
		lastErr = fmt.Errorf("tempo trace has no batches yet")
		time.Sleep(2 * time.Second)
	}
	return lastErr
}

// logsCorrelated checks Loki holds at least one structured log line carrying
// the trace id, scoped to this service first and any service as a fallback.
func (g *grafanaClient) logsCorrelated(ctx context.Context, traceID string) error {
	nowNS := time.Now().UnixNano()
	startNS := nowNS - int64(30*time.Minute)
	queries := []string{
		fmt.Sprintf("{service_name=%q} | json | trace_id=%q", g.opts.serviceName, traceID),
		fmt.Sprintf("{service_name=~\".+\"} | json | trace_id=%q", traceID),
	}
	for _, raw := range queries {
		path := fmt.Sprintf("/api/datasources/proxy/uid/loki/loki/api/v1/query_range?query=%s&start=%d&end=%d&limit=1&direction=backward",
			url.QueryEscape(raw), startNS, nowNS)
		body, err := g.get(ctx, path)
		if err != nil {
			return err
		}
		var payload struct {
			Data struct {
				Result []any `json:"result"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return err
		}
		if len(payload.Data.Result) > 0 {
			return nil
		}
	}
	return fmt.Errorf("no correlated loki logs found for trace_id %s", traceID)
}
