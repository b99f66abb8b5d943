package utils

import (
	"errors"
	"sync"
	"testing"
)

func TestLoadingCounter_Transitions(t *testing.T) {
	var events []bool
	lc := NewLoadingCounter(func(loading bool) {
		events = append(events, loading)
	})

	releaseA := lc.Acquire()
	releaseB := lc.Acquire()
	if !lc.IsLoading() || lc.Count() != 2 {
		t.Fatalf("count = %d", lc.Count())
	}

	releaseA()
	releaseA() // second call ignored
	if lc.Count() != 1 {
		t.Fatalf("count after double release = %d", lc.Count())
	}

	releaseB()
	if lc.IsLoading() {
		t.Fatal("still loading after all releases")
	}

	if len(events) != 2 || events[0] != true || events[1] != false {
		t.Errorf("events = %v, want [true false]", events)
	}
}

func TestLoadingCounter_RunReleasesOnError(t *testing.T) {
	lc := NewLoadingCounter(nil)
	boom := errors.New("boom")

	if err := lc.Run(func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Run() = %v", err)
	}
	if lc.IsLoading() {
		t.Error("Run left the counter held")
	}
}

func TestLoadingCounter_Concurrent(t *testing.T) {
	lc := NewLoadingCounter(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := lc.Acquire()
			release()
		}()
	}
	wg.Wait()

	if lc.Count() != 0 {
		t.Errorf("count = %d after concurrent use", lc.Count())
	}
}
