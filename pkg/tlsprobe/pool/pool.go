// Package pool runs enumeration chains on a fixed number of workers. Rounds
// of one chain run strictly in order, different chains run in parallel.
package pool

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/enum"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 6

// Executor runs a single probe. *enum.Prober satisfies it.
type Executor interface {
	Probe(ctx context.Context, req enum.Request) enum.Outcome
}

// ProgressFunc receives the number of completed units and the current
// estimate of the total. It is called from the coordinator goroutine and
// must not block.
type ProgressFunc func(completed, total int)

// CompleteFunc is called once a chain has no further request. It returns
// the chains unlocked by its result.
type CompleteFunc func(chain enum.Chain) []enum.Chain

// Unit is one probe request of a chain.
type Unit struct {
	Chain   enum.Chain
	Request enum.Request
}

type result struct {
	unit    Unit
	outcome enum.Outcome
}

// Coordinator owns the workers and is the only goroutine touching chains,
// so completion callbacks may write shared results without locking.
type Coordinator struct {
	workers  int
	executor Executor
	progress ProgressFunc
}

// New creates a coordinator with the given number of workers. A nil
// progress function is a no-op.
func New(workers int, executor Executor, progress ProgressFunc) *Coordinator {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Coordinator{workers: workers, executor: executor, progress: progress}
}

// run holds the state of one Run invocation.
type run struct {
	queue     []Unit
	active    map[enum.Chain]struct{}
	inFlight  int
	completed int
	complete  CompleteFunc
}

// Run executes initial and every chain unlocked through complete until no
// work is left. Once ctx is cancelled no further unit is submitted; units
// already handed to a worker finish on their own and Run returns ctx.Err().
func (c *Coordinator) Run(ctx context.Context, initial []enum.Chain, complete CompleteFunc) error {
	units := make(chan Unit)
	results := make(chan result)

	// in flight probes are never preempted, they end on their own timeout
	probeCtx := context.WithoutCancel(ctx)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for unit := range units {
				results <- result{unit: unit, outcome: c.execute(probeCtx, unit)}
			}
		}()
	}
	defer func() {
		close(units)
		wg.Wait()
	}()

	state := &run{active: make(map[enum.Chain]struct{}), complete: complete}
	for _, chain := range initial {
		state.advance(chain)
	}

	done := ctx.Done()
	for state.inFlight > 0 || len(state.queue) > 0 {
		var submit chan<- Unit
		var next Unit
		if len(state.queue) > 0 && ctx.Err() == nil {
			submit = units
			next = state.queue[0]
		}
		select {
		case submit <- next:
			state.queue = state.queue[1:]
			state.inFlight++
		case res := <-results:
			state.inFlight--
			state.completed++
			res.unit.Chain.Observe(res.outcome)
			if ctx.Err() == nil {
				state.advance(res.unit.Chain)
			}
			if c.progress != nil {
				c.progress(state.completed, state.total())
			}
		case <-done:
			gologger.Debug().Msgf("scan cancelled, dropping %d queued probes", len(state.queue))
			state.queue = nil
			done = nil
		}
	}
	return ctx.Err()
}

// advance queues the next request of chain or completes it.
func (r *run) advance(chain enum.Chain) {
	req, ok := chain.Next()
	if ok {
		r.active[chain] = struct{}{}
		r.queue = append(r.queue, Unit{Chain: chain, Request: req})
		return
	}
	delete(r.active, chain)
	if r.complete == nil {
		return
	}
	for _, unlocked := range r.complete(chain) {
		r.advance(unlocked)
	}
}

func (r *run) total() int {
	total := r.completed + r.inFlight + len(r.queue)
	for chain := range r.active {
		total += chain.Remaining()
	}
	return total
}

// execute isolates a panicking probe to its own unit.
func (c *Coordinator) execute(ctx context.Context, unit Unit) (outcome enum.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			gologger.Debug().Msgf("probe panicked: %v\n%s", r, debug.Stack())
			outcome = enum.Outcome{Kind: enum.ParseFailure, Reason: fmt.Sprintf("probe panicked: %v", r)}
		}
	}()
	return c.executor.Probe(ctx, unit.Request)
}
