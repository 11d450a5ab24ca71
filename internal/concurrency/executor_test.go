package concurrency

import (
	"sync"
	"testing"
	"time"
)

func TestExecutorRunsInFIFOOrder(t *testing.T) {
	e := NewExecutor()
	defer e.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(10)

	for i := 0; i < 10; i++ {
		i := i
		if err := e.Submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		}); err != nil {
			t.Fatalf("Submit(%d) returned error: %v", i, err)
		}
	}

	waitOrTimeout(t, &wg, time.Second)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want 0..9 in order", order)
		}
	}
}

func TestExecutorSubmitNeverRunsSynchronously(t *testing.T) {
	e := NewExecutor()
	defer e.Close()

	ran := false
	done := make(chan struct{})
	if err := e.Submit(func() {
		ran = true
		close(done)
	}); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if ran {
		t.Fatal("task ran synchronously inside Submit")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

func TestExecutorSubmitAfterCloseFails(t *testing.T) {
	e := NewExecutor()
	if err := e.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if err := e.Submit(func() {}); err != ErrExecutorClosed {
		t.Fatalf("Submit after Close = %v, want ErrExecutorClosed", err)
	}
}

func TestExecutorCloseDrainsQueuedTasks(t *testing.T) {
	e := NewExecutor()

	var mu sync.Mutex
	ran := 0
	for i := 0; i < 5; i++ {
		e.Submit(func() {
			mu.Lock()
			ran++
			mu.Unlock()
		})
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if ran != 5 {
		t.Fatalf("ran = %d queued tasks before shutdown, want 5", ran)
	}
}

func TestExecutorCloseIsIdempotent(t *testing.T) {
	e := NewExecutor()
	if err := e.Close(); err != nil {
		t.Fatalf("first Close returned error: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close returned error: %v, want nil", err)
	}
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for tasks to complete")
	}
}
