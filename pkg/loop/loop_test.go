package loop

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestDrain(t *testing.T) {
	l := New(10)

	var res []int
	for i := 0; i < 3; i++ {
		l.Post(func() { res = append(res, i) })
	}

	if n := l.Drain(); n != 3 {
		t.Errorf("wrong count: got %d, must be 3", n)
	}

	if len(res) != 3 || res[0] != 0 || res[2] != 2 {
		t.Errorf("wrong order %v", res)
	}

	if n := l.Drain(); n != 0 {
		t.Errorf("queue must be empty, got %d", n)
	}
}

func TestRunUntil(t *testing.T) {
	l := New(10)

	count := 0
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Post(func() { count++ })
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := l.RunUntil(ctx, func() bool { return count == 5 }); err != nil {
		t.Fatal(err)
	}

	wg.Wait()

	if count != 5 {
		t.Errorf("wrong count: got %d, must be 5", count)
	}
}

func TestRunCancel(t *testing.T) {
	l := New(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := l.Run(ctx); err != context.DeadlineExceeded {
		t.Errorf("expected deadline error, got %v", err)
	}

	if err := l.RunUntil(ctx, func() bool { return false }); err == nil {
		t.Errorf("expected error")
	}
}

func TestTryPost(t *testing.T) {
	l := New(2)

	count := 0
	for i := 0; i < 3; i++ {
		ok := l.TryPost(func() { count++ })

		if ok != (i < 2) {
			t.Errorf("post %d: got %v", i, ok)
		}
	}

	if n := l.Drain(); n != 2 || count != 2 {
		t.Errorf("wrong count %d %d", n, count)
	}
}
