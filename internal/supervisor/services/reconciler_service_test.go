// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felpsbot/gametime/internal/twitch"
)

type fakeSubscriptionAPI struct {
	mu        sync.Mutex
	existing  []twitch.Subscription
	created   []twitch.SubscriptionRequest
	createErr error
	listErr   error
}

func (f *fakeSubscriptionAPI) ListSubscriptions(context.Context) ([]twitch.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]twitch.Subscription(nil), f.existing...), nil
}

func (f *fakeSubscriptionAPI) CreateSubscription(_ context.Context, req twitch.SubscriptionRequest) (*twitch.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, req)
	return &twitch.Subscription{ID: "sub-" + req.Type, Type: req.Type, Status: "enabled"}, nil
}

func (f *fakeSubscriptionAPI) createdTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, len(f.created))
	for i, req := range f.created {
		types[i] = req.Type
	}
	return types
}

func newReconciler(helix SubscriptionAPI) *ReconcilerService {
	return NewReconcilerService(helix, "30672329",
		"https://gametime.example.com/eventsub/callback", "s3cr3t-twitch-secret", time.Hour)
}

func TestReconcileCreatesAllMissing(t *testing.T) {
	helix := &fakeSubscriptionAPI{}
	if err := newReconciler(helix).reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	types := helix.createdTypes()
	if len(types) != 3 {
		t.Fatalf("created %d subscriptions, want 3: %v", len(types), types)
	}
}

func TestReconcileSkipsCovered(t *testing.T) {
	helix := &fakeSubscriptionAPI{existing: []twitch.Subscription{{
		Type:      "channel.update",
		Status:    "enabled",
		Condition: twitch.Condition{BroadcasterUserID: "30672329"},
		Transport: twitch.Transport{Method: "webhook", Callback: "https://gametime.example.com/eventsub/callback"},
	}}}
	if err := newReconciler(helix).reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	for _, subType := range helix.createdTypes() {
		if subType == "channel.update" {
			t.Error("recreated an already-enabled subscription")
		}
	}
	if len(helix.createdTypes()) != 2 {
		t.Errorf("created %v, want the two missing types", helix.createdTypes())
	}
}

func TestReconcileRecreatesFailed(t *testing.T) {
	helix := &fakeSubscriptionAPI{existing: []twitch.Subscription{{
		Type:      "channel.update",
		Status:    "notification_failures_exceeded",
		Condition: twitch.Condition{BroadcasterUserID: "30672329"},
		Transport: twitch.Transport{Method: "webhook", Callback: "https://gametime.example.com/eventsub/callback"},
	}}}
	if err := newReconciler(helix).reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	found := false
	for _, subType := range helix.createdTypes() {
		if subType == "channel.update" {
			found = true
		}
	}
	if !found {
		t.Error("failed subscription was not recreated")
	}
}

func TestReconcileToleratesConflict(t *testing.T) {
	helix := &fakeSubscriptionAPI{createErr: twitch.ErrConflict}
	if err := newReconciler(helix).reconcile(context.Background()); err != nil {
		t.Fatalf("conflicts must not fail the reconcile: %v", err)
	}
}

func TestReconcileReturnsListError(t *testing.T) {
	helix := &fakeSubscriptionAPI{listErr: errors.New("helix down")}
	if err := newReconciler(helix).reconcile(context.Background()); err == nil {
		t.Fatal("expected list error to propagate")
	}
}

func TestServeReconcilesOnStartAndStops(t *testing.T) {
	helix := &fakeSubscriptionAPI{}
	svc := newReconciler(helix)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(helix.createdTypes()) < 3 {
		select {
		case <-deadline:
			t.Fatal("initial reconcile did not run")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop on cancel")
	}
}
