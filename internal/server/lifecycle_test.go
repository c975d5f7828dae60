package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"
)

func TestManagedServerStartShutdown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	})
	m := NewManagedServer("test", DefaultServerConfig("127.0.0.1:0", handler, nil))
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Get("http://" + m.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "hello" {
		t.Errorf("body = %q", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.Shutdown(ctx)

	select {
	case err, ok := <-m.Err():
		if ok && err != nil {
			t.Errorf("unexpected server error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("server did not stop")
	}
}

func TestManagedServerBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	m := NewManagedServer("busy", DefaultServerConfig(ln.Addr().String(), http.NotFoundHandler(), nil))
	if err := m.Start(); err == nil {
		t.Fatal("expected bind error")
	}
	if m.Addr() != nil {
		t.Error("Addr() should be nil after failed start")
	}
	m.Shutdown(context.Background())
}
