package connectivity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	DefaultProbeInterval = 15 * time.Second
	DefaultProbeTimeout  = 5 * time.Second
)

// QuotaFunc reports storage used and available.
type QuotaFunc func(ctx context.Context) (used, limit int64, err error)

// ProbeConfig configures a Probe.
type ProbeConfig struct {
	// URL is checked with HEAD. Any response below 500 counts as reachable.
	URL      string
	Interval time.Duration
	Timeout  time.Duration

	// Quota answers storage queries. Nil reports no limit.
	Quota QuotaFunc

	Client *http.Client
	Logger *slog.Logger
}

// Probe is a Port that derives connectivity from periodic reachability checks.
// It starts offline until the first successful check.
type Probe struct {
	notifier

	url      string
	interval time.Duration
	client   *http.Client
	quota    QuotaFunc
	logger   *slog.Logger
}

// NewProbe creates a probe. Call Run to start checking.
func NewProbe(cfg ProbeConfig) (*Probe, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("probe: empty url")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultProbeTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Probe{
		url:      cfg.URL,
		interval: interval,
		client:   client,
		quota:    cfg.Quota,
		logger:   logger,
	}, nil
}

// Run checks immediately and then every interval until ctx is done.
func (p *Probe) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

// Check probes once, updates the state and returns it.
func (p *Probe) Check(ctx context.Context) bool {
	online := p.reachable(ctx)
	if ctx.Err() != nil {
		// A cancelled check says nothing about the network.
		return p.Online()
	}
	if p.set(online) {
		p.logger.Info("connectivity changed",
			"event", "connectivity_changed",
			"online", online,
			"url", p.url,
		)
	}
	return online
}

func (p *Probe) reachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("probe failed", "url", p.url, "error", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode < 500
}

func (p *Probe) Quota(ctx context.Context) (int64, int64, error) {
	if p.quota == nil {
		return 0, 0, nil
	}
	return p.quota(ctx)
}
