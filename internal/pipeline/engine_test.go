// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felpsbot/gametime/internal/eventsub"
	"github.com/felpsbot/gametime/internal/idempotency"
)

// memApplier implements Applier with the same monotonic guard the relational
// store enforces.
type memApplier struct {
	mu      sync.Mutex
	state   map[[2]string]time.Time
	applies int
	failErr error
}

func newMemApplier() *memApplier {
	return &memApplier{state: make(map[[2]string]time.Time)}
}

func (a *memApplier) ApplyGameChange(_ context.Context, ev *eventsub.CanonicalEvent) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.failErr != nil {
		return false, a.failErr
	}

	key := [2]string{ev.StreamerID, ev.GameID}
	if stored, ok := a.state[key]; ok && !stored.Before(ev.OccurredAt) {
		return false, nil
	}
	a.state[key] = ev.OccurredAt
	a.applies++
	return true, nil
}

func (a *memApplier) lastPlayed(streamerID, gameID string) (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ts, ok := a.state[[2]string{streamerID, gameID}]
	return ts, ok
}

func (a *memApplier) applyCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.applies
}

type memFanout struct {
	mu        sync.Mutex
	published []*eventsub.CanonicalEvent
	failErr   error
}

func (f *memFanout) PublishApplied(_ context.Context, ev *eventsub.CanonicalEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.published = append(f.published, ev)
	return nil
}

func (f *memFanout) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func event(notifID, streamerID, gameID string, occurredAt time.Time) *eventsub.CanonicalEvent {
	return &eventsub.CanonicalEvent{
		NotificationID: notifID,
		EventType:      eventsub.TypeChannelUpdate,
		StreamerID:     streamerID,
		StreamerName:   "Felps",
		GameID:         gameID,
		GameName:       "Minecraft",
		OccurredAt:     occurredAt,
	}
}

func newTestEngine() (*Engine, *memApplier, *memFanout) {
	applier := newMemApplier()
	fanout := &memFanout{}
	engine := NewEngine(idempotency.NewMemoryStore(time.Hour), applier, fanout)
	return engine, applier, fanout
}

var baseTime = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

func TestProcessAppliesAndFansOut(t *testing.T) {
	engine, applier, fanout := newTestEngine()

	outcome, err := engine.Process(context.Background(), event("n1", "30672329", "111", baseTime))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Errorf("outcome = %s, want applied", outcome)
	}
	if applier.applyCount() != 1 {
		t.Errorf("applies = %d, want 1", applier.applyCount())
	}
	if fanout.count() != 1 {
		t.Errorf("fanout publishes = %d, want 1", fanout.count())
	}
}

func TestProcessSequentialDuplicate(t *testing.T) {
	engine, applier, fanout := newTestEngine()
	ctx := context.Background()

	if outcome, _ := engine.Process(ctx, event("n1", "1", "10", baseTime)); outcome != OutcomeApplied {
		t.Fatalf("first delivery outcome = %s, want applied", outcome)
	}
	outcome, err := engine.Process(ctx, event("n1", "1", "10", baseTime))
	if err != nil {
		t.Fatalf("duplicate delivery failed: %v", err)
	}
	if outcome != OutcomeDuplicate {
		t.Errorf("outcome = %s, want duplicate", outcome)
	}
	if applier.applyCount() != 1 {
		t.Errorf("applies = %d, want exactly 1", applier.applyCount())
	}
	if fanout.count() != 1 {
		t.Errorf("fanout publishes = %d, want exactly 1", fanout.count())
	}
}

func TestProcessConcurrentSameNotification(t *testing.T) {
	engine, applier, _ := newTestEngine()
	ctx := context.Background()

	const n = 24
	var wg sync.WaitGroup
	outcomes := make(chan Outcome, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := engine.Process(ctx, event("contested", "1", "10", baseTime))
			if err != nil {
				t.Errorf("Process failed: %v", err)
				return
			}
			outcomes <- outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	var applied, duplicate int
	for o := range outcomes {
		switch o {
		case OutcomeApplied:
			applied++
		case OutcomeDuplicate:
			duplicate++
		default:
			t.Errorf("unexpected outcome %s", o)
		}
	}
	if applied != 1 {
		t.Errorf("applied = %d, want exactly 1", applied)
	}
	if duplicate != n-1 {
		t.Errorf("duplicates = %d, want %d", duplicate, n-1)
	}
	if applier.applyCount() != 1 {
		t.Errorf("state mutations = %d, want exactly 1", applier.applyCount())
	}
}

func TestProcessOutOfOrderIsStale(t *testing.T) {
	engine, applier, fanout := newTestEngine()
	ctx := context.Background()

	// Event A at T2 arrives first, event B at T1 < T2 arrives late.
	if outcome, _ := engine.Process(ctx, event("a", "1", "10", baseTime.Add(2*time.Minute))); outcome != OutcomeApplied {
		t.Fatal("event A should apply")
	}
	outcome, err := engine.Process(ctx, event("b", "1", "10", baseTime.Add(1*time.Minute)))
	if err != nil {
		t.Fatalf("event B failed: %v", err)
	}
	if outcome != OutcomeStale {
		t.Errorf("outcome = %s, want stale", outcome)
	}

	if ts, _ := applier.lastPlayed("1", "10"); !ts.Equal(baseTime.Add(2 * time.Minute)) {
		t.Errorf("last played = %s, want A's T2", ts)
	}
	if fanout.count() != 1 {
		t.Errorf("fanout publishes = %d, stale events must not fan out", fanout.count())
	}
}

func TestProcessStaleKeepsReservation(t *testing.T) {
	engine, _, _ := newTestEngine()
	ctx := context.Background()

	if outcome, _ := engine.Process(ctx, event("a", "1", "10", baseTime.Add(time.Hour))); outcome != OutcomeApplied {
		t.Fatal("setup apply failed")
	}
	if outcome, _ := engine.Process(ctx, event("b", "1", "10", baseTime)); outcome != OutcomeStale {
		t.Fatal("expected stale outcome")
	}

	// Redelivery of the stale notification must be a duplicate, never a
	// second comparison.
	outcome, err := engine.Process(ctx, event("b", "1", "10", baseTime))
	if err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if outcome != OutcomeDuplicate {
		t.Errorf("outcome = %s, want duplicate", outcome)
	}
}

func TestProcessScenario(t *testing.T) {
	engine, applier, _ := newTestEngine()
	ctx := context.Background()

	// Streamer 30672329 plays game 111 at T=100.
	if outcome, _ := engine.Process(ctx, event("n1", "30672329", "111", baseTime.Add(100*time.Second))); outcome != OutcomeApplied {
		t.Fatal("n1 should apply")
	}

	// Same notification replayed.
	if outcome, _ := engine.Process(ctx, event("n1", "30672329", "111", baseTime.Add(100*time.Second))); outcome != OutcomeDuplicate {
		t.Fatal("replayed n1 should be a duplicate")
	}
	if ts, _ := applier.lastPlayed("30672329", "111"); !ts.Equal(baseTime.Add(100 * time.Second)) {
		t.Errorf("last played moved on duplicate: %s", ts)
	}

	// Genuinely new notification for game 111 at T=50.
	if outcome, _ := engine.Process(ctx, event("n2", "30672329", "111", baseTime.Add(50*time.Second))); outcome != OutcomeStale {
		t.Fatal("n2 should be stale")
	}
	if ts, _ := applier.lastPlayed("30672329", "111"); !ts.Equal(baseTime.Add(100 * time.Second)) {
		t.Errorf("last played moved on stale: %s", ts)
	}

	// New notification for game 222 at T=150 creates an independent row.
	if outcome, _ := engine.Process(ctx, event("n3", "30672329", "222", baseTime.Add(150*time.Second))); outcome != OutcomeApplied {
		t.Fatal("n3 should apply")
	}
	if ts, ok := applier.lastPlayed("30672329", "222"); !ok || !ts.Equal(baseTime.Add(150*time.Second)) {
		t.Errorf("game 222 last played = %s, want T=150", ts)
	}
	if ts, _ := applier.lastPlayed("30672329", "111"); !ts.Equal(baseTime.Add(100 * time.Second)) {
		t.Errorf("game 111 row affected by game 222 apply: %s", ts)
	}
}

func TestProcessPersistenceFailureReleasesReservation(t *testing.T) {
	engine, applier, _ := newTestEngine()
	ctx := context.Background()

	applier.failErr = errors.New("connection reset")
	if _, err := engine.Process(ctx, event("n1", "1", "10", baseTime)); err == nil {
		t.Fatal("expected error from failed persistence")
	}

	// After the failure is resolved, redelivery of the same notification
	// must be able to apply.
	applier.failErr = nil
	outcome, err := engine.Process(ctx, event("n1", "1", "10", baseTime))
	if err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Errorf("outcome = %s, want applied after released reservation", outcome)
	}
}

func TestProcessFanoutFailureDoesNotChangeOutcome(t *testing.T) {
	engine, applier, fanout := newTestEngine()
	fanout.failErr = errors.New("bus unavailable")

	outcome, err := engine.Process(context.Background(), event("n1", "1", "10", baseTime))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Errorf("outcome = %s, want applied despite publish failure", outcome)
	}
	if applier.applyCount() != 1 {
		t.Errorf("applies = %d, want 1", applier.applyCount())
	}
}

func TestProcessNilFanout(t *testing.T) {
	applier := newMemApplier()
	engine := NewEngine(idempotency.NewMemoryStore(time.Hour), applier, nil)

	outcome, err := engine.Process(context.Background(), event("n1", "1", "10", baseTime))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Errorf("outcome = %s, want applied", outcome)
	}
}

func TestProcessConcurrentDistinctNotificationsSamePair(t *testing.T) {
	engine, applier, _ := newTestEngine()
	ctx := context.Background()

	// Different notification IDs racing on the same entity pair: the
	// conditional write keeps the maximum timestamp whatever the
	// interleaving.
	offsets := []int{10, 40, 20, 50, 30}
	var wg sync.WaitGroup
	for i, off := range offsets {
		wg.Add(1)
		go func(i, off int) {
			defer wg.Done()
			ev := event(string(rune('a'+i)), "1", "10", baseTime.Add(time.Duration(off)*time.Second))
			if _, err := engine.Process(ctx, ev); err != nil {
				t.Errorf("Process failed: %v", err)
			}
		}(i, off)
	}
	wg.Wait()

	if ts, _ := applier.lastPlayed("1", "10"); !ts.Equal(baseTime.Add(50 * time.Second)) {
		t.Errorf("last played = %s, want max T=50s", ts)
	}
}
