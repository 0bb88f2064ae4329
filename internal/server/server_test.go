package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return ln
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	s := New(http.NotFoundHandler(), Options{Port: 8080}, discardLogger())
	if s.Addr() != ":8080" {
		t.Errorf("Addr() = %q, want :8080", s.Addr())
	}
	if s.http.ReadTimeout != 15*time.Second || s.http.IdleTimeout != 2*time.Minute || s.shutdownTimeout != 30*time.Second {
		t.Errorf("defaults not applied: read=%s idle=%s shutdown=%s", s.http.ReadTimeout, s.http.IdleTimeout, s.shutdownTimeout)
	}
}

func TestServeAndShutdownOrder(t *testing.T) {
	t.Parallel()

	s := New(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}), Options{ShutdownTimeout: 5 * time.Second}, discardLogger())

	var mu sync.Mutex
	var order []string
	stop := func(name string) ShutdownFunc {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	s.Go(ctx, "worker", func(ctx context.Context) error {
		<-ctx.Done()
		close(workerDone)
		return nil
	}, stop("worker"))
	s.OnShutdown("store", stop("store"))

	ln := listen(t)
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("body = %q, want ok", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	<-workerDone

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "store" || order[1] != "worker" {
		t.Errorf("shutdown order = %v, want [store worker]", order)
	}
}

func TestShutdownJoinsErrors(t *testing.T) {
	t.Parallel()

	s := New(http.NotFoundHandler(), Options{ShutdownTimeout: time.Second}, discardLogger())
	wantErr := errors.New("flush failed")
	ran := false
	s.OnShutdown("broken", func(context.Context) error { return wantErr })
	s.OnShutdown("fine", func(context.Context) error { ran = true; return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Serve(ctx, listen(t)); !errors.Is(err, wantErr) {
		t.Errorf("Serve() error = %v, want %v", err, wantErr)
	}
	if !ran {
		t.Error("a failing component stopped the remaining shutdowns")
	}
}
