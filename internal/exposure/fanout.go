package exposure

import (
	"context"
	"errors"
	"log"
	"time"
)

// FanoutConfig bounds one batch of concurrent source calls. BatchTimeout
// must be at least CallTimeout; config validation enforces this at startup.
type FanoutConfig struct {
	CallTimeout  time.Duration
	BatchTimeout time.Duration
}

// DefaultFanoutConfig mirrors the budgets the upstream feeds are sized for.
func DefaultFanoutConfig() FanoutConfig {
	return FanoutConfig{
		CallTimeout:  8 * time.Second,
		BatchTimeout: 10 * time.Second,
	}
}

type fanoutResult struct {
	name    string
	payload Payload
	err     error
}

// FanoutEngine runs source calls concurrently with per-call and batch
// timeouts, collecting partial results. One slow or failing source never
// blocks or fails the others.
type FanoutEngine struct {
	cfg FanoutConfig
}

// NewFanoutEngine creates an engine with the given budgets.
func NewFanoutEngine(cfg FanoutConfig) *FanoutEngine {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultFanoutConfig().CallTimeout
	}
	if cfg.BatchTimeout < cfg.CallTimeout {
		cfg.BatchTimeout = cfg.CallTimeout
	}
	return &FanoutEngine{cfg: cfg}
}

// Run executes every source concurrently and returns a map with exactly one
// entry per source: the payload on success, an error marker on failure or
// timeout. If the batch timeout fires first, still-pending sources are
// recorded as timed out and their late results are discarded; there is no
// cooperative cancellation beyond the per-call context.
func (e *FanoutEngine) Run(ctx context.Context, req Request, sources []Source) map[string]Payload {
	results := make(chan fanoutResult, len(sources))

	for _, src := range sources {
		go func(src Source) {
			callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
			defer cancel()

			payload, err := src.Fetch(callCtx, req)
			results <- fanoutResult{name: src.Name(), payload: payload, err: err}
		}(src)
	}

	merged := make(map[string]Payload, len(sources))
	batch := time.NewTimer(e.cfg.BatchTimeout)
	defer batch.Stop()

	pending := len(sources)
collect:
	for pending > 0 {
		select {
		case r := <-results:
			pending--
			switch {
			case r.err == nil:
				merged[r.name] = r.payload
			case errors.Is(r.err, context.DeadlineExceeded):
				log.Printf("source %s timed out for cell %s", r.name, req.CellID)
				merged[r.name] = ErrorMarker(r.name, "timeout")
			default:
				log.Printf("source %s failed for cell %s: %v", r.name, req.CellID, r.err)
				merged[r.name] = ErrorMarker(r.name, r.err.Error())
			}
		case <-batch.C:
			break collect
		}
	}

	// Anything still pending when the batch budget ran out.
	for _, src := range sources {
		if _, ok := merged[src.Name()]; !ok {
			log.Printf("source %s exceeded batch budget for cell %s", src.Name(), req.CellID)
			merged[src.Name()] = ErrorMarker(src.Name(), "timeout")
		}
	}

	return merged
}
