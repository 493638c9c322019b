// Package executor runs a batch of independent evaluator calls concurrently
// and collects their outcomes. One evaluator's failure, panic, or slowness
// never fails the batch: every request resolves to either a RESPONSE or an
// ERROR message before the batch returns.
package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"abvalid/internal/agent"
	"abvalid/internal/orchestrator"
	"abvalid/internal/protocol"
	"abvalid/internal/validation"
)

// DefaultCallTimeout bounds each evaluator call when no timeout is
// configured. There is no batch-level deadline; the caller's context bounds
// the whole run.
const DefaultCallTimeout = 60 * time.Second

// Executor dispatches requests to evaluator agents keyed by agent ID.
type Executor struct {
	agents      map[string]agent.Evaluator
	callTimeout time.Duration
	logger      *zap.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithCallTimeout sets the per-evaluator timeout. Exceeding it yields an
// ERROR outcome for that evaluator only; siblings are unaffected.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// New builds an executor over the agent table. The map is keyed by the
// receiver agent ID used on request messages.
func New(agents map[string]agent.Evaluator, opts ...Option) *Executor {
	e := &Executor{
		agents:      agents,
		callTimeout: DefaultCallTimeout,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute invokes all requests concurrently and blocks until every one has
// resolved. Outcomes are returned in timestamp order, which is not request
// order; callers must match responses to requests by sender and task.
func (e *Executor) Execute(ctx context.Context, requests []*protocol.Message, vc *validation.Context) []*protocol.Message {
	outcomes := make([]*protocol.Message, 0, len(requests))
	var mu sync.Mutex
	collect := func(m *protocol.Message) {
		mu.Lock()
		outcomes = append(outcomes, m)
		mu.Unlock()
	}

	// Plain errgroup as a join barrier: goroutines always return nil so a
	// failing evaluator cannot cancel its siblings.
	var eg errgroup.Group
	for _, req := range requests {
		eg.Go(func() error {
			collect(e.dispatch(ctx, req, vc))
			return nil
		})
	}
	_ = eg.Wait()

	// An evaluator can stamp its message long before it returns, so arrival
	// order and stamp order disagree. The session log requires non-decreasing
	// timestamps; hand the batch back in stamp order.
	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].Timestamp.Before(outcomes[j].Timestamp)
	})
	return outcomes
}

// dispatch resolves a single request to a RESPONSE or ERROR message.
func (e *Executor) dispatch(ctx context.Context, req *protocol.Message, vc *validation.Context) (out *protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("evaluator panicked",
				zap.String("receiver", req.Receiver),
				zap.Any("panic", r))
			out = protocol.NewError(req, fmt.Sprintf("evaluator panic: %v", r))
		}
	}()

	ev, ok := e.agents[req.Receiver]
	if !ok {
		return protocol.NewError(req, fmt.Sprintf("no agent registered for %s", req.Receiver))
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	start := time.Now()
	resp, err := e.call(callCtx, ev, req, vc)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		if callCtx.Err() == context.DeadlineExceeded {
			e.logger.Warn("evaluator timed out",
				zap.String("receiver", req.Receiver),
				zap.Duration("timeout", e.callTimeout))
			return protocol.NewError(req, fmt.Sprintf("timeout after %s", e.callTimeout))
		}
		e.logger.Warn("evaluator failed",
			zap.String("receiver", req.Receiver),
			zap.Error(err))
		return protocol.NewError(req, err.Error())
	case resp == nil:
		return protocol.NewError(req, "evaluator returned no message")
	case resp.Kind == protocol.KindError:
		return resp
	}

	// Ingestion gate: a COMPLETED response must carry a score in [0,100].
	// Out-of-range values are rejected here, not clamped.
	if _, err := orchestrator.ScoreFromResult(resp.Result); err != nil {
		e.logger.Warn("evaluator response rejected",
			zap.String("receiver", req.Receiver),
			zap.Error(err))
		return protocol.NewError(req, err.Error())
	}

	e.logger.Debug("evaluator completed",
		zap.String("receiver", req.Receiver),
		zap.Duration("elapsed", elapsed))
	return resp
}

// call runs the evaluator in its own goroutine so a blocked implementation
// cannot outlive its deadline from the executor's point of view. The
// evaluator receives the timeout context and is expected to honor it; if it
// does not, its eventual result is discarded.
func (e *Executor) call(ctx context.Context, ev agent.Evaluator, req *protocol.Message, vc *validation.Context) (*protocol.Message, error) {
	type outcome struct {
		msg *protocol.Message
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("evaluator panic: %v", r)}
			}
		}()
		msg, err := ev.Handle(ctx, req, vc)
		ch <- outcome{msg: msg, err: err}
	}()

	select {
	case o := <-ch:
		return o.msg, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
