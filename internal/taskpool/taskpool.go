// Package taskpool runs indexed tasks against a bounded worker budget. It
// exists for anchor searches where scanning every image section is wasted
// effort once one section yields a conclusive match.
package taskpool

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
)

// Status classifies a task outcome.
type Status int

const (
	// StatusComplete stores the value at the task's index.
	StatusComplete Status = iota
	// StatusIgnore discards the value.
	StatusIgnore
	// StatusShortCircuit stores the value and stops all lanes from claiming
	// further indices. In-flight tasks are allowed to finish, but values they
	// report afterwards are supplanted by the short-circuited one.
	StatusShortCircuit
)

// Result carries a task outcome and its value.
type Result[T any] struct {
	Status Status
	Value  T
}

// Complete marks the value as accepted.
func Complete[T any](v T) Result[T] { return Result[T]{Status: StatusComplete, Value: v} }

// Ignore discards the task's output.
func Ignore[T any]() Result[T] { return Result[T]{Status: StatusIgnore} }

// ShortCircuit marks the value as conclusive.
func ShortCircuit[T any](v T) Result[T] { return Result[T]{Status: StatusShortCircuit, Value: v} }

// Task computes the result for one index. Returning an error rejects the
// whole run.
type Task[T any] func(ctx context.Context, index int) (Result[T], error)

// Runner executes count indexed tasks with at most limit in flight.
type Runner[T any] struct {
	count int
	limit int
	task  Task[T]
}

// New constructs a Runner. A non-positive limit defaults to 1.
func New[T any](count, limit int, task Task[T]) *Runner[T] {
	if limit < 1 {
		limit = 1
	}
	return &Runner[T]{count: count, limit: limit, task: task}
}

type stored[T any] struct {
	index int
	seq   uint64
	value T
}

type collector[T any] struct {
	mu      sync.Mutex
	seq     uint64
	values  []stored[T]
	sc      bool
	scValue T
	err     error
}

func (c *collector[T]) store(index int, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sc {
		// Supplanted: a conclusive value already exists.
		return
	}
	c.seq++
	c.values = append(c.values, stored[T]{index: index, seq: c.seq, value: v})
}

func (c *collector[T]) shortCircuit(v T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sc {
		return false
	}
	c.sc = true
	c.scValue = v
	return true
}

func (c *collector[T]) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// run drives the lanes and fills the collector.
func (r *Runner[T]) run(ctx context.Context) (*collector[T], error) {
	if r.count <= 0 {
		return &collector[T]{}, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	col := &collector[T]{}
	var next atomic.Int64
	var stop atomic.Bool

	lanes := r.limit
	if lanes > r.count {
		lanes = r.count
	}

	var wg sync.WaitGroup
	for i := 0; i < lanes; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if stop.Load() || ctx.Err() != nil {
					return
				}
				idx := int(next.Add(1)) - 1
				if idx >= r.count {
					return
				}
				res, err := r.task(ctx, idx)
				if err != nil {
					col.fail(err)
					stop.Store(true)
					cancel()
					return
				}
				switch res.Status {
				case StatusComplete:
					col.store(idx, res.Value)
				case StatusShortCircuit:
					if col.shortCircuit(res.Value) {
						stop.Store(true)
					}
					return
				case StatusIgnore:
				}
			}
		}()
	}
	wg.Wait()

	if col.err != nil {
		return nil, col.err
	}
	if err := ctx.Err(); err != nil && !col.sc {
		return nil, err
	}
	return col, nil
}

// Run executes all tasks and returns the non-ignored values in index order.
// If a task short-circuited, its value alone is returned.
func (r *Runner[T]) Run(ctx context.Context) ([]T, error) {
	col, err := r.run(ctx)
	if err != nil {
		return nil, err
	}
	if col.sc {
		return []T{col.scValue}, nil
	}
	sort.Slice(col.values, func(i, j int) bool { return col.values[i].index < col.values[j].index })
	out := make([]T, 0, len(col.values))
	for _, s := range col.values {
		out = append(out, s.value)
	}
	return out, nil
}

// ErrNoValue indicates every task ignored its index.
var ErrNoValue = errors.New("taskpool: no value produced")

// Latest returns the single most recently stored value, or the
// short-circuited value if one occurred.
func (r *Runner[T]) Latest(ctx context.Context) (T, error) {
	var zero T
	col, err := r.run(ctx)
	if err != nil {
		return zero, err
	}
	if col.sc {
		return col.scValue, nil
	}
	if len(col.values) == 0 {
		return zero, ErrNoValue
	}
	best := col.values[0]
	for _, s := range col.values[1:] {
		if s.seq > best.seq {
			best = s
		}
	}
	return best.value, nil
}
