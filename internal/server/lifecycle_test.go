package server

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestManagedServerStartShutdown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	m := NewManagedServer("api", DefaultServerConfig("127.0.0.1:0", handler, zap.NewNop()))

	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	resp, err := http.Get("http://" + m.Addr() + "/")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("expected status 418, got %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.Shutdown(ctx)

	if _, err := http.Get("http://" + m.Addr() + "/"); err == nil {
		t.Error("expected connection error after shutdown")
	}
}

func TestManagedServerAddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()

	m := NewManagedServer("api", DefaultServerConfig(ln.Addr().String(), http.NotFoundHandler(), zap.NewNop()))
	if err := m.Start(); err == nil {
		t.Fatal("expected bind error")
	}

	// Shutdown after a failed start is a no-op.
	m.Shutdown(context.Background())
}

func TestManagedServerLogsServeFailure(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	m := NewManagedServer("api", DefaultServerConfig("127.0.0.1:0", http.NotFoundHandler(), zap.New(core)))

	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	_ = m.listener.Close()

	deadline := time.Now().Add(2 * time.Second)
	for logs.FilterMessage("server stopped unexpectedly").Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("serve failure was not logged")
		}
		time.Sleep(5 * time.Millisecond)
	}
	entry := logs.FilterMessage("server stopped unexpectedly").All()[0]
	if entry.ContextMap()["server"] != "api" {
		t.Errorf("unexpected log fields %v", entry.ContextMap())
	}
}
