package domainset

import (
	"context"
	"testing"
	"time"

	noria "github.com/Khalefa/noria"
)

func newTestDomain(id uint64) *noria.Domain {
	return noria.NewDomain(noria.DomainConfig{ID: noria.DomainIndex(id)})
}

func TestRunAllReturnsOnceEveryDomainQuits(t *testing.T) {
	domains := []*noria.Domain{newTestDomain(0), newTestDomain(1), newTestDomain(2)}
	for _, d := range domains {
		d.Mailbox().Bounded <- noria.NewQuit()
	}

	done := make(chan error, 1)
	go func() { done <- RunAll(context.Background(), domains) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for RunAll to return")
	}
}

func TestRunAllQuitsAllDomainsWhenContextIsCancelled(t *testing.T) {
	domains := []*noria.Domain{newTestDomain(0), newTestDomain(1)}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- RunAll(ctx, domains) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for a cancelled context to quit every domain")
	}
}
