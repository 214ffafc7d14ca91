// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package observer

import (
	"slices"
	"testing"
)

func TestListPublishOrder(t *testing.T) {
	var list List[int]
	var got []string
	list.Subscribe(func(v int) { got = append(got, "a") })
	list.Subscribe(func(v int) { got = append(got, "b") })

	list.Publish(1)
	if !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("publish order = %v, want [a b]", got)
	}
}

func TestListLateSubscriberMissesEarlierEvents(t *testing.T) {
	var list List[string]
	list.Publish("early")

	var got []string
	list.Subscribe(func(v string) { got = append(got, v) })
	list.Publish("late")
	if !slices.Equal(got, []string{"late"}) {
		t.Fatalf("got %v, want [late]", got)
	}
}

func TestListUnsubscribe(t *testing.T) {
	var list List[int]
	count := 0
	unsubscribe := list.Subscribe(func(int) { count++ })
	list.Publish(1)
	unsubscribe()
	unsubscribe()
	list.Publish(2)
	if count != 1 {
		t.Fatalf("callback ran %d times, want 1", count)
	}
	if list.Len() != 0 {
		t.Fatalf("Len = %d after unsubscribe, want 0", list.Len())
	}
}

func TestListUnsubscribeDuringPublish(t *testing.T) {
	var list List[int]
	var second int
	var unsubscribeSecond func()
	list.Subscribe(func(int) { unsubscribeSecond() })
	unsubscribeSecond = list.Subscribe(func(int) { second++ })

	list.Publish(1)
	list.Publish(2)
	if second != 1 {
		t.Fatalf("second subscriber ran %d times, want 1 (removed during first publish)", second)
	}
}

func TestConditionReplay(t *testing.T) {
	var condition Condition
	fired := 0
	condition.Subscribe(func() { fired++ })
	if fired != 0 {
		t.Fatalf("subscriber to a false condition ran on Subscribe")
	}

	if !condition.Set(true) {
		t.Fatal("Set(true) on a false condition did not notify")
	}
	if condition.Set(true) {
		t.Fatal("Set(true) on a true condition notified again")
	}
	if fired != 1 {
		t.Fatalf("fired = %d after rising edge, want 1", fired)
	}

	late := 0
	condition.Subscribe(func() { late++ })
	if late != 1 {
		t.Fatalf("late subscriber replayed %d times, want 1", late)
	}

	condition.Set(false)
	condition.Set(true)
	if fired != 2 || late != 2 {
		t.Fatalf("after second rising edge fired=%d late=%d, want 2 and 2", fired, late)
	}
}

func TestConditionFallingEdgeIsSilent(t *testing.T) {
	var condition Condition
	condition.Set(true)
	fired := 0
	condition.Subscribe(func() { fired++ })
	if condition.Set(false) {
		t.Fatal("Set(false) reported a notification")
	}
	if fired != 1 {
		t.Fatalf("fired = %d, want only the replay", fired)
	}
	if condition.Holds() {
		t.Fatal("Holds() = true after Set(false)")
	}
}
