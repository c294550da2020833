// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

type fakeHTTPServer struct {
	listenErr  error
	shutdownCh chan struct{}
	shutdown   bool
}

func newFakeHTTPServer(listenErr error) *fakeHTTPServer {
	return &fakeHTTPServer{listenErr: listenErr, shutdownCh: make(chan struct{})}
}

func (s *fakeHTTPServer) ListenAndServe() error {
	if s.listenErr != nil {
		return s.listenErr
	}
	<-s.shutdownCh
	return http.ErrServerClosed
}

func (s *fakeHTTPServer) Shutdown(context.Context) error {
	s.shutdown = true
	close(s.shutdownCh)
	return nil
}

func TestHTTPServiceReturnsStartupError(t *testing.T) {
	boom := errors.New("bind: address already in use")
	svc := NewHTTPServerService(newFakeHTTPServer(boom), time.Second)

	err := svc.Serve(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("Serve returned %v, want the listen error", err)
	}
}

func TestHTTPServiceGracefulShutdown(t *testing.T) {
	server := newFakeHTTPServer(nil)
	svc := NewHTTPServerService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if !server.shutdown {
		t.Error("server was not shut down gracefully")
	}
}
