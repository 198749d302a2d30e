// Package batch executes large sets of on-chain reads through a multicall batcher
// in bounded chunks, retrying transient chunk failures with backoff and
// tolerating sparse per-call failures up to a minimum success rate.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/yourorg/router-providers/internal/metrics"
	"github.com/yourorg/router-providers/internal/multicall"
	"github.com/yourorg/router-providers/internal/otel"
	"github.com/yourorg/router-providers/internal/provider"
	"github.com/yourorg/router-providers/internal/types"
)

// DefaultParallelism bounds how many chunks are in flight at once
const DefaultParallelism = 4

// ErrCallReverted marks an inner call that executed but did not succeed
var ErrCallReverted = errors.New("call reverted")

// Result is the outcome of one call. Err is nil only for successful calls.
type Result struct {
	Success     bool
	ReturnData  []byte
	GasUsed     uint64
	BlockNumber uint64
	Err         error
}

// OK reports whether the call succeeded
func (r Result) OK() bool {
	return r.Err == nil && r.Success
}

// Executor runs call batches for one network
type Executor struct {
	name        string
	network     types.NetworkID
	batcher     multicall.Batcher
	sink        metrics.Sink
	tags        metrics.Tags
	parallelism int
}

// New creates an executor reporting under name
func New(name string, network types.NetworkID, batcher multicall.Batcher) *Executor {
	return &Executor{
		name:        name,
		network:     network,
		batcher:     batcher,
		sink:        metrics.Nop{},
		tags:        metrics.Tags{"network": network.String()},
		parallelism: DefaultParallelism,
	}
}

// WithMetrics reports batch metrics to sink
func (e *Executor) WithMetrics(sink metrics.Sink) *Executor {
	e.sink = metrics.Safe(sink)
	return e
}

// WithParallelism sets how many chunks may run concurrently
func (e *Executor) WithParallelism(n int) *Executor {
	if n > 0 {
		e.parallelism = n
	}
	return e
}

type chunk struct {
	index      int
	start, end int
}

func partition(n, size int) []chunk {
	chunks := make([]chunk, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		chunks = append(chunks, chunk{index: len(chunks), start: start, end: end})
	}
	return chunks
}

// capGas limits every call to limit. Calls without a limit get exactly limit.
func capGas(calls []multicall.Call, limit uint64) []multicall.Call {
	capped := make([]multicall.Call, len(calls))
	for i, c := range calls {
		if c.GasLimit == 0 || c.GasLimit > limit {
			c.GasLimit = limit
		}
		capped[i] = c
	}
	return capped
}

func timeoutMarker(ctx context.Context) error {
	return provider.Transient(fmt.Errorf("%w: %w", provider.ErrTimeout, context.Cause(ctx)))
}

// Execute runs calls and returns one result per call in input order.
// Transient chunk failures are retried per retry and, when policy has a
// fallback, tried once more under it. Any other failure aborts the batch and is
// returned unchanged. If the share of successful calls ends below
// policy.MinSuccessRate an *UnderThresholdError is returned.
func (e *Executor) Execute(ctx context.Context, calls []multicall.Call, retry RetryPolicy, policy BatchPolicy) ([]Result, error) {
	if err := retry.Validate(); err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if len(calls) == 0 {
		return []Result{}, nil
	}

	start := time.Now()
	chunks := partition(len(calls), policy.ChunkSize)
	ctx, span := otel.StartSpan(ctx, e.name+".batch.execute", e.network.String(),
		attribute.Int("calls", len(calls)),
		attribute.Int("chunks", len(chunks)),
	)
	defer span.End()

	capped := capGas(calls, policy.PerCallResourceLimit)
	results := make([]Result, len(calls))
	launched := make([]bool, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for _, c := range chunks {
		if gctx.Err() != nil {
			break
		}
		c := c
		launched[c.index] = true
		g.Go(func() error {
			return e.runChunk(gctx, c, capped, results, retry, policy)
		})
	}
	if err := g.Wait(); err != nil {
		otel.RecordError(ctx, err)
		logrus.WithFields(logrus.Fields{
			"network": e.network.String(),
			"batch":   e.name,
		}).Errorf("Batch aborted: %v", err)
		return nil, err
	}

	for _, c := range chunks {
		if !launched[c.index] {
			markChunk(results, c, timeoutMarker(ctx))
		}
	}

	succeeded := 0
	for _, r := range results {
		if r.OK() {
			succeeded++
		}
	}
	rate := float64(succeeded) / float64(len(results))

	e.sink.PutMetric(e.name+".batch.chunks", float64(len(chunks)), metrics.Count, e.tags)
	e.sink.PutMetric(e.name+".batch.success_rate", rate*100, metrics.Percent, e.tags)
	e.sink.PutMetric(e.name+".batch.latency", float64(time.Since(start).Milliseconds()), metrics.Milliseconds, e.tags)

	if rate < policy.MinSuccessRate {
		err := &UnderThresholdError{Succeeded: succeeded, Total: len(results), Rate: rate, Min: policy.MinSuccessRate}
		if ctx.Err() != nil {
			err.Cause = timeoutMarker(ctx)
		}
		otel.RecordError(ctx, err)
		return nil, err
	}
	return results, nil
}

// runChunk resolves every call of c into results. It returns an error only for
// failures that must abort the whole batch. gctx is cancelled by the caller or
// by such a failure in a sibling chunk.
func (e *Executor) runChunk(gctx context.Context, c chunk, calls []multicall.Call, results []Result, retry RetryPolicy, policy BatchPolicy) error {
	if gctx.Err() != nil {
		markChunk(results, c, timeoutMarker(gctx))
		return nil
	}

	log := logrus.WithFields(logrus.Fields{
		"network": e.network.String(),
		"batch":   e.name,
		"chunk":   c.index,
		"calls":   c.end - c.start,
	})

	var resp *multicall.Response
	attempt := 0
	op := func() error {
		attempt++
		r, err := e.batcher.Multicall(gctx, calls[c.start:c.end], multicall.CallOptions{})
		if err != nil {
			if provider.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(r.Results) != c.end-c.start {
			return backoff.Permanent(fmt.Errorf("chunk %d: got %d results for %d calls", c.index, len(r.Results), c.end-c.start))
		}
		resp = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		e.sink.PutMetric(e.name+".batch.retries", 1, metrics.Count, e.tags)
		log.WithFields(logrus.Fields{"attempt": attempt, "wait": wait}).Debugf("Chunk failed, retrying: %v", err)
	}

	err := backoff.RetryNotify(op, newBackOff(gctx, retry), notify)
	switch {
	case err == nil:
		fillChunk(results, c, resp)
		return nil
	case gctx.Err() != nil:
		// the caller's deadline or a sibling's fatal error ended this chunk
		markChunk(results, c, timeoutMarker(gctx))
		return nil
	case !provider.IsTransient(err):
		return err
	}

	if policy.Fallback == nil {
		log.Warnf("Chunk failed after %d attempts: %v", attempt, err)
		markChunk(results, c, err)
		return nil
	}

	log.Infof("Chunk failed after %d attempts, trying fallback calibration: %v", attempt, err)
	return e.runFallback(gctx, c, calls, results, *policy.Fallback, log)
}

// runFallback re-splits c under fb and tries each piece once
func (e *Executor) runFallback(ctx context.Context, c chunk, calls []multicall.Call, results []Result, fb FallbackPolicy, log *logrus.Entry) error {
	e.sink.PutMetric(e.name+".batch.fallback", 1, metrics.Count, e.tags)
	sub := capGas(calls[c.start:c.end], fb.PerCallResourceLimit)

	for _, p := range partition(len(sub), fb.ChunkSize) {
		piece := chunk{index: c.index, start: c.start + p.start, end: c.start + p.end}
		if ctx.Err() != nil {
			markChunk(results, piece, timeoutMarker(ctx))
			continue
		}

		resp, err := e.batcher.Multicall(ctx, sub[p.start:p.end], multicall.CallOptions{GasLimit: fb.GasLimitOverride})
		if err == nil && len(resp.Results) != p.end-p.start {
			return fmt.Errorf("chunk %d fallback: got %d results for %d calls", c.index, len(resp.Results), p.end-p.start)
		}
		switch {
		case err == nil:
			fillChunk(results, piece, resp)
		case ctx.Err() != nil:
			markChunk(results, piece, timeoutMarker(ctx))
		case !provider.IsTransient(err):
			return err
		default:
			log.WithField("piece", p.index).Warnf("Fallback piece failed: %v", err)
			markChunk(results, piece, err)
		}
	}
	return nil
}

func newBackOff(ctx context.Context, p RetryPolicy) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.MinDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxRetries)), ctx)
}

func fillChunk(results []Result, c chunk, resp *multicall.Response) {
	for i, r := range resp.Results {
		res := Result{
			Success:     r.Success,
			ReturnData:  r.ReturnData,
			GasUsed:     r.GasUsed,
			BlockNumber: resp.BlockNumber,
		}
		if !r.Success {
			res.Err = ErrCallReverted
		}
		results[c.start+i] = res
	}
}

func markChunk(results []Result, c chunk, err error) {
	for i := c.start; i < c.end; i++ {
		results[i] = Result{Err: err}
	}
}
