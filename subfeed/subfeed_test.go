// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package subfeed

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/labbox-foundation/labbox/lib/testutil"
)

func TestReplicaFollowsSubfeed(t *testing.T) {
	fetcher := newFakeFetcher()
	sender := newRecordingSender()
	manager, fake := newTestManager(t, fetcher, sender)

	replica, err := manager.Subscribe("feed://a", "main")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	changes := make(chan struct{}, 8)
	replica.OnChange(func() { changes <- struct{}{} })

	// First cycle: the subfeed is empty, but finishing it still counts
	// as the initial load.
	request := testutil.RequireReceive(t, sender.sent, 5*time.Second, "first subfeed request")
	if replica.LoadedInitialMessages() {
		t.Fatal("loaded before the first cycle finished")
	}
	manager.HandleMessage(notification(request["requestId"].(string), 0))
	testutil.RequireReceive(t, changes, 5*time.Second, "initial load notification")
	if !replica.LoadedInitialMessages() || replica.Len() != 0 {
		t.Fatalf("after first cycle: loaded=%v len=%d", replica.LoadedInitialMessages(), replica.Len())
	}

	fake.WaitForTimers(1)
	fake.Advance(DefaultIdlePause)

	// Second cycle waits at position 0 until notified.
	request = testutil.RequireReceive(t, sender.sent, 5*time.Second, "second subfeed request")
	if request["position"] != 0 {
		t.Errorf("second request position = %v, want 0", request["position"])
	}
	fetcher.add("feed://a", "main", `"a"`, `"b"`)
	manager.HandleMessage(notification(request["requestId"].(string), 2))
	testutil.RequireReceive(t, changes, 5*time.Second, "growth notification")
	requireMessages(t, replica.Messages(), `"a"`, `"b"`)

	// Third cycle polls from the replica's length and finds the new
	// message without waiting.
	fetcher.add("feed://a", "main", `"c"`)
	fake.WaitForTimers(1)
	fake.Advance(DefaultIdlePause)
	testutil.RequireReceive(t, changes, 5*time.Second, "second growth notification")
	requireMessages(t, replica.Messages(), `"a"`, `"b"`, `"c"`)

	replica.Cleanup()
	fake.WaitForTimers(1)
	fake.Advance(DefaultIdlePause)
	testutil.RequireClosed(t, replica.Done(), 5*time.Second, "driver exit after cleanup")
}

func TestReplicaNotifiesOnlyOnGrowthAfterLoad(t *testing.T) {
	manager, _ := newTestManager(t, newFakeFetcher(), nil)
	key, err := KeyOf("feed://a", "main")
	if err != nil {
		t.Fatalf("KeyOf: %v", err)
	}
	replica := newSubfeed(manager, key, "feed://a", "main")
	var notified int
	replica.OnChange(func() { notified++ })

	replica.apply(nil)
	if notified != 1 {
		t.Fatalf("empty first cycle notified %d times, want 1", notified)
	}
	replica.apply(nil)
	if notified != 1 {
		t.Fatalf("empty later cycle notified (count %d)", notified)
	}
	replica.apply([]json.RawMessage{json.RawMessage(`1`), json.RawMessage(`2`)})
	if notified != 2 {
		t.Fatalf("growth notified %d times total, want 2", notified)
	}
	if replica.Len() != 2 {
		t.Errorf("Len = %d, want 2", replica.Len())
	}
}

func TestReplicaRetriesAfterFailedPoll(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.setError(errors.New("feed api down"))
	manager, fake := newTestManager(t, fetcher, newRecordingSender())

	replica, err := manager.Subscribe("feed://a", "main")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer replica.Cleanup()

	fake.WaitForTimers(1)
	if replica.LoadedInitialMessages() {
		t.Fatal("failed poll marked the replica loaded")
	}

	fetcher.setError(nil)
	fetcher.add("feed://a", "main", `"recovered"`)
	delivered := make(chan []json.RawMessage, 8)
	OnMessages(replica, func(messages []json.RawMessage) { delivered <- messages })
	fake.Advance(DefaultIdlePause)

	messages := testutil.RequireReceive(t, delivered, 5*time.Second, "messages after recovery")
	requireMessages(t, messages, `"recovered"`)
	if !replica.LoadedInitialMessages() {
		t.Error("replica not loaded after a successful poll")
	}
}

func TestSubscribeSharesReplica(t *testing.T) {
	manager, _ := newTestManager(t, newFakeFetcher(), newRecordingSender())

	first, err := manager.Subscribe("feed://a", map[string]any{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	second, err := manager.Subscribe("feed://a", map[string]any{"b": 2, "a": 1})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if first != second {
		t.Fatal("equal subfeed names produced separate replicas")
	}

	first.Cleanup()
	if first.inactive.Load() {
		t.Fatal("replica stopped while a subscriber remained")
	}
	second.Cleanup()
	if !first.inactive.Load() {
		t.Fatal("replica still active after its last cleanup")
	}
	second.Cleanup()

	third, err := manager.Subscribe("feed://a", map[string]any{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if third == first {
		t.Fatal("released replica was reused")
	}

	manager.Close()
	testutil.RequireClosed(t, first.Done(), 5*time.Second, "released driver exit")
	testutil.RequireClosed(t, third.Done(), 5*time.Second, "driver exit on manager close")
	if _, err := manager.Subscribe("feed://a", "main"); err == nil {
		t.Error("Subscribe succeeded on a closed manager")
	}
}

func TestSubscribeDistinctFeeds(t *testing.T) {
	manager, _ := newTestManager(t, newFakeFetcher(), newRecordingSender())
	a, err := manager.Subscribe("feed://a", "main")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer a.Cleanup()
	b, err := manager.Subscribe("feed://b", "main")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer b.Cleanup()
	if a == b || a.Key() == b.Key() {
		t.Fatal("different feeds share a replica")
	}
}

func TestCursor(t *testing.T) {
	manager, _ := newTestManager(t, newFakeFetcher(), nil)
	key, _ := KeyOf("", "main")
	replica := newSubfeed(manager, key, "", "main")
	cursor := replica.NewCursor()

	if fresh := cursor.Next(); fresh != nil {
		t.Fatalf("Next on empty replica = %s", fresh)
	}
	replica.apply([]json.RawMessage{json.RawMessage(`1`), json.RawMessage(`2`)})
	requireMessages(t, cursor.Next(), `1`, `2`)
	if fresh := cursor.Next(); fresh != nil {
		t.Fatalf("Next repeated messages: %s", fresh)
	}
	replica.apply([]json.RawMessage{json.RawMessage(`3`)})
	requireMessages(t, cursor.Next(), `3`)
	if cursor.Position() != 3 {
		t.Errorf("Position = %d, want 3", cursor.Position())
	}
}

func TestOnMessagesDeliversOnce(t *testing.T) {
	manager, _ := newTestManager(t, newFakeFetcher(), nil)
	key, _ := KeyOf("feed://a", "main")
	replica := newSubfeed(manager, key, "feed://a", "main")
	replica.apply([]json.RawMessage{json.RawMessage(`1`)})

	var delivered [][]json.RawMessage
	unsubscribe := OnMessages(replica, func(messages []json.RawMessage) {
		delivered = append(delivered, messages)
	})
	replica.apply(nil)
	replica.apply([]json.RawMessage{json.RawMessage(`2`), json.RawMessage(`3`)})
	unsubscribe()
	replica.apply([]json.RawMessage{json.RawMessage(`4`)})

	if len(delivered) != 2 {
		t.Fatalf("delivered %d batches, want 2", len(delivered))
	}
	requireMessages(t, delivered[0], `1`)
	requireMessages(t, delivered[1], `2`, `3`)
}
