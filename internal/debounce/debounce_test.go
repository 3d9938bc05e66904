package debounce

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedule_OnlyLastRuns(t *testing.T) {
	s := NewScope("test")
	defer s.Close()

	var mu sync.Mutex
	var ran []int
	done := make(chan struct{}, 4)

	for i := 1; i <= 3; i++ {
		i := i
		s.Schedule("url", 100*time.Millisecond, func() {
			mu.Lock()
			ran = append(ran, i)
			mu.Unlock()
			done <- struct{}{}
		})
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected debounced action to run")
	}
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 1 || ran[0] != 3 {
		t.Errorf("Expected only the last action to run once, got %v", ran)
	}
}

func TestSchedule_KeysAreIndependent(t *testing.T) {
	s := NewScope("test")
	defer s.Close()

	var a, b int32
	var wg sync.WaitGroup
	wg.Add(2)
	s.Schedule("a", 30*time.Millisecond, func() { atomic.AddInt32(&a, 1); wg.Done() })
	s.Schedule("b", 30*time.Millisecond, func() { atomic.AddInt32(&b, 1); wg.Done() })

	waitTimeout(t, &wg, 2*time.Second)
	if atomic.LoadInt32(&a) != 1 || atomic.LoadInt32(&b) != 1 {
		t.Errorf("Expected each key to fire once, got a=%d b=%d", a, b)
	}
}

func TestCancel(t *testing.T) {
	s := NewScope("test")
	defer s.Close()

	var calls int32
	s.Schedule("url", 30*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })
	if !s.Cancel("url") {
		t.Fatal("Expected pending action to be cancelled")
	}
	if s.Cancel("url") {
		t.Error("Expected second cancel to report nothing pending")
	}

	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("Expected cancelled action not to run, got %d calls", calls)
	}
}

func TestClose_CancelsPendingAndRejectsNew(t *testing.T) {
	s := NewScope("test")

	var calls int32
	s.Schedule("a", 30*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })
	s.Schedule("b", 30*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })
	if s.Pending() != 2 {
		t.Fatalf("Expected 2 pending timers, got %d", s.Pending())
	}

	s.Close()
	if s.Pending() != 0 {
		t.Errorf("Expected no pending timers after close, got %d", s.Pending())
	}
	if s.Schedule("c", time.Millisecond, func() { atomic.AddInt32(&calls, 1) }) {
		t.Error("Expected schedule on closed scope to be rejected")
	}

	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("Expected no actions after close, got %d", calls)
	}

	s.Close()
}

func TestClose_WaitsForRunningAction(t *testing.T) {
	s := NewScope("test")

	started := make(chan struct{})
	var finished int32
	s.Schedule("slow", time.Millisecond, func() {
		close(started)
		time.Sleep(50 * time.Millisecond)
		atomic.StoreInt32(&finished, 1)
	})

	<-started
	s.Close()
	if atomic.LoadInt32(&finished) != 1 {
		t.Error("Expected Close to wait for the running action")
	}
}

func TestValue(t *testing.T) {
	s := NewScope("test")
	defer s.Close()

	got := make(chan string, 3)
	v := NewValue(s, "url", 50*time.Millisecond, func(u string) { got <- u })

	v.Set("https://a.example")
	time.Sleep(10 * time.Millisecond)
	v.Set("https://ab.example")
	time.Sleep(10 * time.Millisecond)
	v.Set("https://abc.example")

	select {
	case u := <-got:
		if u != "https://abc.example" {
			t.Errorf("Expected last value, got %q", u)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected debounced value")
	}

	select {
	case u := <-got:
		t.Errorf("Expected a single call, got extra %q", u)
	case <-time.After(120 * time.Millisecond):
	}
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("Timed out waiting for actions")
	}
}
