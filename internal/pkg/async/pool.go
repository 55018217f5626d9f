// Package async provides a small fixed-size worker pool for fan-out queries.
package async

import (
	"context"
	"sync"
)

// Task is a named unit of work executed by the pool.
type Task struct {
	Name    string
	Execute func() (interface{}, error)
}

// Result carries a task's outcome back to the caller, keyed by task name.
type Result struct {
	Name string
	Data interface{}
	Err  error
}

// Pool runs tasks across a bounded number of workers.
type Pool struct {
	workerCount int
}

// NewPool creates a pool with the given number of workers.
func NewPool(workerCount int) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Pool{workerCount: workerCount}
}

// Execute runs all tasks and returns their results keyed by task name.
// Each task's error is captured in its Result; one failing task never
// prevents the others from completing. Returns early with whatever has
// finished if the context is cancelled.
func (p *Pool) Execute(ctx context.Context, tasks []Task) map[string]Result {
	queue := make(chan Task)
	out := make(chan Result, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range queue {
				data, err := task.Execute()
				out <- Result{Name: task.Name, Data: data, Err: err}
			}
		}()
	}

	go func() {
		defer close(queue)
		for _, task := range tasks {
			select {
			case queue <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	results := make(map[string]Result, len(tasks))
	for i := 0; i < len(tasks); i++ {
		select {
		case result := <-out:
			results[result.Name] = result
		case <-ctx.Done():
			return results
		}
	}

	wg.Wait()
	return results
}
