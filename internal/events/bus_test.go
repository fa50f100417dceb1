/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import (
	"sync"
	"testing"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus()
	state := bus.Subscribe(EventRotationState)
	failures := bus.Subscribe(EventHealthFailure)

	bus.Publish(EventRotationState, Payload{"state": "A"})

	select {
	case p := <-state:
		if p["state"] != "A" {
			t.Errorf("payload = %v, want state=A", p)
		}
	default:
		t.Fatal("subscriber did not receive event")
	}

	select {
	case p := <-failures:
		t.Errorf("unrelated subscriber received %v", p)
	default:
	}
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventRotationState)

	for i := 0; i < cap(sub)+5; i++ {
		bus.Publish(EventRotationState, Payload{"i": i})
	}
	if len(sub) != cap(sub) {
		t.Errorf("buffered = %d, want %d", len(sub), cap(sub))
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventVoteResolved)
	bus.Unsubscribe(EventVoteResolved, sub)

	if _, ok := <-sub; ok {
		t.Error("channel still open after Unsubscribe")
	}
	if n := bus.Subscribers(EventVoteResolved); n != 0 {
		t.Errorf("Subscribers() = %d, want 0", n)
	}

	// a second unsubscribe must not panic on the closed channel
	bus.Unsubscribe(EventVoteResolved, sub)
	bus.Publish(EventVoteResolved, Payload{})
}

func TestBusConcurrentUnsubscribe(t *testing.T) {
	bus := NewBus()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		sub := bus.Subscribe(EventRotationState)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				bus.Publish(EventRotationState, Payload{"j": j})
			}
		}()
		go func() {
			defer wg.Done()
			bus.Unsubscribe(EventRotationState, sub)
		}()
	}
	wg.Wait()
}
