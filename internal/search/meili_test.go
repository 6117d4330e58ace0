package search

import (
	"errors"
	"testing"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

// unreachableMeili builds a client pointed at a closed port; every request
// fails fast, which is all these tests need.
func unreachableMeili() *Meili {
	return &Meili{
		client: meili.New("http://127.0.0.1:1", meili.WithAPIKey("test")),
		done:   make(chan struct{}),
	}
}

func waitFired(t *testing.T, fired chan struct{}) {
	t.Helper()
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected healthy hook to fire")
	}
}

func TestOnHealthyFiresOnRecovery(t *testing.T) {
	m := unreachableMeili()
	fired := make(chan struct{}, 4)
	m.OnHealthy(func() { fired <- struct{}{} })

	m.observeHealth(errors.New("connection refused"))
	if m.Healthy() {
		t.Fatalf("expected unhealthy after failed probe")
	}
	select {
	case <-fired:
		t.Fatalf("hook must not fire while unhealthy")
	default:
	}

	m.observeHealth(nil)
	if !m.Healthy() {
		t.Fatalf("expected healthy after successful probe")
	}
	waitFired(t, fired)

	// Staying healthy is not a recovery.
	m.observeHealth(nil)
	select {
	case <-fired:
		t.Fatalf("hook must only fire on the unhealthy-to-healthy transition")
	case <-time.After(50 * time.Millisecond):
	}

	// A second outage and recovery fires again.
	m.observeHealth(errors.New("connection refused"))
	m.observeHealth(nil)
	waitFired(t, fired)
}

func TestOnHealthyFiresImmediatelyWhenAlreadyHealthy(t *testing.T) {
	m := unreachableMeili()
	m.healthy.Store(true)

	fired := make(chan struct{}, 1)
	m.OnHealthy(func() { fired <- struct{}{} })
	waitFired(t, fired)
}
