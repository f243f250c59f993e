// Package workers runs blocking engine calls on a bounded set of goroutines,
// apart from the goroutines serving HTTP connections.
package workers

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// ErrCanceled is returned when the caller gives up before the task produced
// a result. The task itself keeps running to completion.
var ErrCanceled = errors.New("workers: caller canceled")

// PanicError carries a panic raised by a task.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("workers: task panicked: %v", e.Value)
}

// Observer receives pool occupancy changes.
type Observer interface {
	Waiting(delta int)
	Running(delta int)
}

type noopObserver struct{}

func (noopObserver) Waiting(int) {}
func (noopObserver) Running(int) {}

// Pool bounds the number of concurrently executing tasks.
type Pool struct {
	sem  *semaphore.Weighted
	size int
	obs  Observer
}

// New returns a pool running at most size tasks at once.
func New(size int, obs Observer) *Pool {
	if size < 1 {
		size = 1
	}
	if obs == nil {
		obs = noopObserver{}
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size, obs: obs}
}

// Size returns the maximum number of concurrent tasks.
func (p *Pool) Size() int {
	return p.size
}

// Run waits for a free slot and executes task on a pool goroutine.
//
// Once started, task is never interrupted: it receives a context detached from
// ctx's cancellation. If ctx ends first, Run returns ErrCanceled wrapping the
// context error and the task's result is dropped.
func (p *Pool) Run(ctx context.Context, task func(ctx context.Context) error) error {
	p.obs.Waiting(1)
	err := p.sem.Acquire(ctx, 1)
	p.obs.Waiting(-1)
	if err != nil {
		return errors.Join(ErrCanceled, err)
	}

	done := make(chan error, 1)
	p.obs.Running(1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &PanicError{Value: r}
			}
			p.obs.Running(-1)
			p.sem.Release(1)
		}()
		done <- task(context.WithoutCancel(ctx))
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errors.Join(ErrCanceled, ctx.Err())
	}
}

// Call is Run for tasks producing a value.
func Call[T any](ctx context.Context, p *Pool, task func(ctx context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	results := make(chan result, 1)
	err := p.Run(ctx, func(ctx context.Context) error {
		v, err := task(ctx)
		results <- result{v, err}
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	r := <-results
	return r.v, nil
}
