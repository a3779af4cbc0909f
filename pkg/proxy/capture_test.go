// pkg/proxy/capture_test.go
package proxy

import (
	"testing"
	"time"
)

func TestRecentRequests_AddListClear(t *testing.T) {
	cs := NewRecentRequests(2)

	cs.Add(RequestRecord{URL: "a"})
	cs.Add(RequestRecord{URL: "b"})
	cs.Add(RequestRecord{URL: "c"}) // should evict "a"

	got := cs.List()
	if len(got) != 2 {
		t.Fatalf("expected 2 entries after overflow, got %d", len(got))
	}
	if got[0].URL != "b" || got[1].URL != "c" {
		t.Fatalf("unexpected entries order: %+v", got)
	}

	cs.Clear()
	if l := len(cs.List()); l != 0 {
		t.Fatalf("expected 0 entries after Clear(), got %d", l)
	}
}

func TestStartChainsObserver(t *testing.T) {
	// Simulate a pre-existing observer which records something externally.
	called := false
	s := New(Config{
		Addr:            "127.0.0.1:0",
		RequestObserver: func(r RequestRecord) { called = true },
	})
	if err := s.Start(); err != nil {
		t.Fatalf("start proxy: %v", err)
	}
	defer s.Close()

	// Start should have chained the capture ring onto the observer.
	if s.cfg.RequestObserver == nil {
		t.Fatalf("expected RequestObserver to be set")
	}
	rec := RequestRecord{URL: "x", Time: time.Now()}
	s.cfg.RequestObserver(rec)

	// allow potential goroutines to finish (observer is synchronous here)
	time.Sleep(10 * time.Millisecond)

	if !called {
		t.Fatalf("expected previous observer to be called")
	}

	ent := s.Capture.List()
	if len(ent) != 1 {
		t.Fatalf("expected ring to capture 1 entry, got %d", len(ent))
	}
	if ent[0].URL != "x" {
		t.Fatalf("unexpected stored URL: %s", ent[0].URL)
	}
}

func TestNotifyObserverRecoversPanic(t *testing.T) {
	ran := make(chan struct{})
	NotifyObserver(func(r RequestRecord) {
		defer close(ran)
		panic("observer exploded")
	}, RequestRecord{URL: "x"})

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("observer never ran")
	}
	// give the recover a moment; the test fails by crashing if it escapes
	time.Sleep(10 * time.Millisecond)
}
