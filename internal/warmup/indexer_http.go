package warmup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/flemzord/devwarm/internal/gitprep"
	"github.com/flemzord/devwarm/pkg/job"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultIndexerTimeout   = 30 * time.Minute
	defaultBreakerThreshold = 3
	defaultBreakerCooldown  = 5 * time.Minute
	maxIndexerResponse      = 1 << 20
)

// HTTPIndexerConfig configures an HTTPIndexer.
type HTTPIndexerConfig struct {
	// URL is the base URL of the indexing service.
	URL string

	// Token is sent as a bearer token when set.
	Token string

	// Timeout bounds a single index request. Defaults to 30m.
	Timeout time.Duration

	// FailureThreshold is the number of consecutive unavailable responses
	// that opens the circuit. Defaults to 3.
	FailureThreshold uint32

	// Cooldown is how long the circuit stays open. Defaults to 5m.
	Cooldown time.Duration

	// Client overrides the HTTP client. Its transport is used as is.
	Client *http.Client

	Logger *slog.Logger
}

// HTTPIndexer asks a remote indexing service to build indexes.
type HTTPIndexer struct {
	endpoint string
	token    string
	timeout  time.Duration
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// Compile-time interface check.
var _ Indexer = (*HTTPIndexer)(nil)

type indexRequest struct {
	Repository string   `json:"repository"`
	IDE        string   `json:"ide"`
	Refs       []string `json:"refs,omitempty"`
}

type indexResponse struct {
	Status string `json:"status"`
	Logs   string `json:"logs"`
	Error  string `json:"error,omitempty"`
}

// NewHTTPIndexer validates cfg and returns an indexer client.
func NewHTTPIndexer(cfg HTTPIndexerConfig) (*HTTPIndexer, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("warmup: invalid indexer url %q", cfg.URL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultIndexerTimeout
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = defaultBreakerThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultBreakerCooldown
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	logger := cfg.Logger
	threshold := cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "indexer",
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Only an unreachable service counts against the circuit; a build
		// that ran and failed says nothing about availability.
		IsSuccessful: func(err error) bool {
			kind, _ := KindOf(err)
			return err == nil || kind != KindIndexerUnavailable
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("warmup: indexer circuit state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &HTTPIndexer{
		endpoint: strings.TrimRight(u.String(), "/") + "/v1/index",
		token:    cfg.Token,
		timeout:  cfg.Timeout,
		client:   cfg.Client,
		breaker:  breaker,
		logger:   cfg.Logger,
	}, nil
}

// BuildIndex implements Indexer.
func (h *HTTPIndexer) BuildIndex(ctx context.Context, repo gitprep.RepoHandle, ide job.IDE) (IndexReport, error) {
	op := fmt.Sprintf("index %s", ide)
	start := time.Now()

	res, err := h.breaker.Execute(func() (interface{}, error) {
		return h.post(ctx, op, indexRequest{Repository: repo.Path, IDE: string(ide), Refs: repo.Refs})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return IndexReport{}, &Error{Kind: KindIndexerUnavailable, Op: op, Err: err}
	}
	if err != nil {
		return IndexReport{}, err
	}

	resp, _ := res.(indexResponse)
	return IndexReport{Logs: resp.Logs, Duration: time.Since(start)}, nil
}

func (h *HTTPIndexer) post(ctx context.Context, op string, body indexRequest) (indexResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return indexResponse{}, &Error{Kind: KindIndexerFailed, Op: op, Err: err}
	}

	reqCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, h.endpoint, bytes.NewReader(payload))
	if err != nil {
		return indexResponse{}, &Error{Kind: KindIndexerUnavailable, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return indexResponse{}, fmt.Errorf("warmup: %s interrupted: %w", op, ctx.Err())
		}
		if reqCtx.Err() != nil {
			return indexResponse{}, &Error{Kind: KindIndexerTimeout, Op: op, Err: err}
		}
		return indexResponse{}, &Error{Kind: KindIndexerUnavailable, Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxIndexerResponse))
	if err != nil {
		if reqCtx.Err() != nil && ctx.Err() == nil {
			return indexResponse{}, &Error{Kind: KindIndexerTimeout, Op: op, Err: err}
		}
		return indexResponse{}, &Error{Kind: KindIndexerUnavailable, Op: op, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusGatewayTimeout:
		return indexResponse{}, &Error{Kind: KindIndexerTimeout, Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusTooManyRequests:
		return indexResponse{}, &Error{Kind: KindIndexerUnavailable, Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return indexResponse{}, &Error{Kind: KindIndexerFailed, Op: op, Output: string(raw), Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var out indexResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return indexResponse{}, &Error{Kind: KindIndexerFailed, Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	if !strings.EqualFold(out.Status, "ok") && !strings.EqualFold(out.Status, "succeeded") {
		msg := out.Error
		if msg == "" {
			msg = "status " + out.Status
		}
		return indexResponse{}, &Error{Kind: KindIndexerFailed, Op: op, Output: out.Logs, Err: errors.New(msg)}
	}

	h.logger.Debug("warmup: indexer accepted request", "ide", body.IDE, "status", resp.StatusCode)
	return out, nil
}
