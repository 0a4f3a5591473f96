// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

package services

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

var (
	_ suture.Service = (*HTTPServerService)(nil)
	_ suture.Service = (*PeriodicService)(nil)
)

type fakeHTTPServer struct {
	listenErr error
	stopCh    chan struct{}
	shutdowns atomic.Int32
}

func (f *fakeHTTPServer) ListenAndServe() error {
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.stopCh
	return http.ErrServerClosed
}

func (f *fakeHTTPServer) Shutdown(context.Context) error {
	f.shutdowns.Add(1)
	close(f.stopCh)
	return nil
}

func TestHTTPServerServiceShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	server := &fakeHTTPServer{stopCh: make(chan struct{})}
	svc := NewHTTPServerService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if server.shutdowns.Load() != 1 {
		t.Errorf("Shutdown called %d times", server.shutdowns.Load())
	}
}

func TestHTTPServerServiceReportsListenFailure(t *testing.T) {
	t.Parallel()

	server := &fakeHTTPServer{listenErr: errors.New("address already in use"), stopCh: make(chan struct{})}
	err := NewHTTPServerService(server, 0).Serve(context.Background())
	if err == nil || server.shutdowns.Load() != 0 {
		t.Errorf("Serve() = %v, shutdowns = %d", err, server.shutdowns.Load())
	}
}

func TestPeriodicServiceRunsOnStartAndOnTick(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	svc := NewPeriodicService(func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("runs must carry a deadline")
		}
		if runs.Add(1) == 1 {
			return errors.New("first run fails")
		}
		return nil
	}, PeriodicConfig{Name: "sweeper", Interval: 20 * time.Millisecond, RunOnStart: true})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	for runs.Load() < 3 && ctx.Err() == nil {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if runs.Load() < 3 {
		t.Errorf("runs = %d, want at least 3 (a failed run must not stop the service)", runs.Load())
	}
	if svc.String() != "sweeper" {
		t.Errorf("String() = %q", svc.String())
	}
}

func TestPeriodicServiceDefaults(t *testing.T) {
	t.Parallel()

	svc := NewPeriodicService(func(context.Context) error { return nil }, PeriodicConfig{})
	if svc.config.Interval != time.Hour || svc.config.Timeout != time.Hour || svc.String() != "periodic" {
		t.Errorf("config = %+v", svc.config)
	}
}
