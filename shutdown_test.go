package miniredis

import "testing"

func TestShutdownBroadcastsToAllSubscribers(t *testing.T) {
	sig := newShutdownSignal()
	a := sig.subscribe()
	b := sig.subscribe()

	if a.IsShutdown() || b.IsShutdown() {
		t.Fatal("should not be shut down before trigger")
	}

	done := make(chan struct{})
	go func() {
		a.Recv()
		b.Recv()
		close(done)
	}()

	sig.trigger()
	<-done

	if !a.IsShutdown() || !b.IsShutdown() {
		t.Fatal("both observers should report shut down after trigger")
	}
}

func TestShutdownTriggerIsIdempotent(t *testing.T) {
	sig := newShutdownSignal()
	sig.trigger()
	sig.trigger() // must not panic on double close
	s := sig.subscribe()
	s.Recv()
	if !s.IsShutdown() {
		t.Fatal("expected IsShutdown to be true")
	}
}

func TestShutdownRecvReturnsImmediatelyAfterFired(t *testing.T) {
	sig := newShutdownSignal()
	sig.trigger()
	s := sig.subscribe()
	s.Recv()
	s.Recv() // second call must not block
}
