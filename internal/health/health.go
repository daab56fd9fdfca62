// Package health reports whether the configured backends are reachable.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Check states.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusDown     = "down"
	StatusDisabled = "disabled"
)

const checkTimeout = 5 * time.Second

// CheckFunc probes one backend. A nil error means healthy; the string is
// an optional detail such as a version.
type CheckFunc func(ctx context.Context) (string, error)

// Result is the outcome of one check.
type Result struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

// Report is the health document.
type Report struct {
	Status    string            `json:"status"`
	Checks    map[string]Result `json:"checks"`
	CheckedAt string            `json:"checkedAt"`
}

type check struct {
	name string
	fn   CheckFunc
}

// Checker runs a fixed set of checks.
type Checker struct {
	checks   []check
	disabled []string
	log      *slog.Logger
}

// NewChecker creates an empty Checker.
func NewChecker(log *slog.Logger) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{log: log}
}

// Add registers a check.
func (c *Checker) Add(name string, fn CheckFunc) {
	c.checks = append(c.checks, check{name: name, fn: fn})
}

// Disabled records a backend that is switched off in the configuration.
func (c *Checker) Disabled(name string) {
	c.disabled = append(c.disabled, name)
}

// Run executes every check concurrently. The report is "ok" when every
// enabled check passed, "down" when all failed and "degraded" otherwise.
func (c *Checker) Run(ctx context.Context) *Report {
	rep := &Report{
		Checks:    make(map[string]Result, len(c.checks)+len(c.disabled)),
		CheckedAt: time.Now().UTC().Format(time.RFC3339),
	}
	var (
		mu     sync.Mutex
		failed int
	)
	g, gCtx := errgroup.WithContext(ctx)
	for _, ch := range c.checks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gCtx, checkTimeout)
			defer cancel()

			start := time.Now()
			detail, err := ch.fn(cctx)
			res := Result{Status: StatusOK, Detail: detail, LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				res.Status = StatusDown
				res.Error = err.Error()
				c.log.Warn("health check failed", slog.String("check", ch.name), slog.String("error", err.Error()))
			}

			mu.Lock()
			defer mu.Unlock()
			rep.Checks[ch.name] = res
			if err != nil {
				failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, name := range c.disabled {
		rep.Checks[name] = Result{Status: StatusDisabled}
	}
	switch {
	case failed == 0:
		rep.Status = StatusOK
	case failed == len(c.checks):
		rep.Status = StatusDown
	default:
		rep.Status = StatusDegraded
	}
	return rep
}
