package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/fleet-relay/internal/infrastructure/config"
	"github.com/nerrad567/fleet-relay/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and captures line protocol sent to /api/v2/write.
type fakeInflux struct {
	mu     sync.Mutex
	lines  []string
	writes chan struct{}
}

func newFakeInflux(t *testing.T) (*fakeInflux, *httptest.Server) {
	t.Helper()
	f := &fakeInflux{writes: make(chan struct{}, 16)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			f.lines = append(f.lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
			f.writes <- struct{}{}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeInflux) waitLines(t *testing.T) []string {
	t.Helper()
	select {
	case <-f.writes:
	case <-time.After(5 * time.Second):
		t.Fatal("no write received")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "test-token",
		Org:           "fleet",
		Bucket:        "metrics",
		BatchSize:     100,
		FlushInterval: 60,
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	if _, err := influxdb.Connect(cfg); !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := influxdb.Connect(testConfig(url)); !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteMetrics(t *testing.T) {
	fake, srv := newFakeInflux(t)
	client, err := influxdb.Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	client.WriteCommand("list", "bot", "ok", 1500*time.Microsecond)
	client.WriteHeartbeat("pi-1", true, 3)
	client.WriteFleet(4, 2, 7)
	client.Flush()

	lines := fake.waitLines(t)
	joined := strings.Join(lines, "\n")
	for _, want := range []string{
		"bot_commands,command=list,outcome=ok,source=bot count=1i,duration_ms=1.5",
		"device_heartbeats,device_id=pi-1 online=true,pending_commands=3i",
		"fleet online=2i,pending_commands=7i,total=4i",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing line %q in:\n%s", want, joined)
		}
	}
}

func TestClose(t *testing.T) {
	_, srv := newFakeInflux(t)
	client, err := influxdb.Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	// Writes after close are dropped, not panics.
	client.WriteHeartbeat("pi-1", false, 0)
	client.Flush()
}

func TestNilClient(t *testing.T) {
	var client *influxdb.Client
	if client.IsConnected() {
		t.Error("nil IsConnected() = true")
	}
	if err := client.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
	client.WriteCommand("x", "bot", "ok", 0)
}
