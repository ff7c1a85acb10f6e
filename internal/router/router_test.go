package router

import (
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vkolb/waldb/internal/protocol"
	"github.com/vkolb/waldb/internal/worker"
	"github.com/vkolb/waldb/rpc/common"
	"github.com/vkolb/waldb/rpc/serializer"
)

func testLogger() common.ILogger {
	l := common.CreateLogger("router-test")
	l.SetLevel(common.LevelError)
	return l
}

func startTestRouter(t *testing.T) (*Router, string) {
	t.Helper()
	dir := t.TempDir()
	endpoint := filepath.Join(dir, "waldb.sock")

	r := New(Config{
		Endpoint:     endpoint,
		IdleTimeout:  0, // disable the watchdog so tests control lifecycle
		MaxFrameSize: protocol.DefaultMaxFrameSize,
		WorkerConfig: worker.Config{IdleTimeout: time.Hour, InboxCapacity: 16},
	}, testLogger())

	errCh := make(chan error, 1)
	go func() { errCh <- r.Serve() }()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := net.Dial("unix", endpoint); err == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Cleanup(func() {
		r.Shutdown()
		select {
		case <-errCh:
		case <-time.After(time.Second):
		}
	})

	return r, endpoint
}

func roundTrip(t *testing.T, endpoint string, req *protocol.Request) *protocol.Response {
	t.Helper()
	conn, err := net.Dial("unix", endpoint)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	ser := serializer.NewJSONSerializer()
	payload, err := ser.SerializeRequest(req)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if err := protocol.WriteFrame(conn, payload); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	out, err := protocol.ReadFrame(conn, nil, protocol.DefaultMaxFrameSize)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	resp, err := ser.DeserializeResponse(out)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	return resp
}

func TestRouterPingWithoutDB(t *testing.T) {
	_, endpoint := startTestRouter(t)

	resp := roundTrip(t, endpoint, protocol.NewPingRequest(""))
	if resp.Status != "ok" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestRouterForwardsExecBatchAndSpawnsWorker(t *testing.T) {
	dir := t.TempDir()
	_, endpoint := startTestRouter(t)

	dbPath := filepath.Join(dir, "app.db")
	resp := roundTrip(t, endpoint, protocol.NewExecBatchRequest(dbPath, []protocol.Statement{
		{SQL: "CREATE TABLE t(id INTEGER)"},
	}, protocol.TxAtomic))
	if resp.Status != "ok" || resp.Rev == nil || *resp.Rev != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	canonical, err := canonicalDBPath(dbPath)
	if err != nil {
		t.Fatalf("canonicalDBPath: %v", err)
	}

	status := roundTrip(t, endpoint, protocol.NewStatusRequest())
	if len(status.Workers) != 1 || status.Workers[0].Db != canonical {
		t.Fatalf("expected one worker registered for %s, got %+v", canonical, status.Workers)
	}
}

// TestRouterCanonicalizesDifferentSpellingsToOneWorker exercises the
// at-most-one-worker-per-database guarantee: a relative spelling and an
// absolute spelling of the same path must resolve to the same worker
// rather than spawning two independent writers against the same file.
func TestRouterCanonicalizesDifferentSpellingsToOneWorker(t *testing.T) {
	dir := t.TempDir()
	_, endpoint := startTestRouter(t)

	abs := filepath.Join(dir, "shared.db")
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("os.Getwd: %v", err)
	}
	rel, err := filepath.Rel(cwd, abs)
	if err != nil {
		t.Fatalf("filepath.Rel: %v", err)
	}

	resp := roundTrip(t, endpoint, protocol.NewExecBatchRequest(abs, []protocol.Statement{
		{SQL: "CREATE TABLE t(id INTEGER)"},
	}, protocol.TxAtomic))
	if resp.Status != "ok" {
		t.Fatalf("unexpected response for absolute path: %+v", resp)
	}

	resp = roundTrip(t, endpoint, protocol.NewExecBatchRequest(rel, []protocol.Statement{
		{SQL: "INSERT INTO t(id) VALUES (1)"},
	}, protocol.TxAtomic))
	if resp.Status != "ok" || resp.Rev == nil || *resp.Rev != 2 {
		t.Fatalf("expected the relative spelling to land on the same worker at rev 2, got: %+v", resp)
	}

	status := roundTrip(t, endpoint, protocol.NewStatusRequest())
	if len(status.Workers) != 1 {
		t.Fatalf("expected exactly one worker for both spellings of the same path, got %+v", status.Workers)
	}
}

func TestRouterRejectsUnknownRequestType(t *testing.T) {
	_, endpoint := startTestRouter(t)

	resp := roundTrip(t, endpoint, &protocol.Request{Type: protocol.ReqUnknown})
	if resp.Status != "error" || resp.Code != protocol.CodeBadRequest {
		t.Fatalf("expected BadRequest, got %+v", resp)
	}
}

// panicOnceSerializer implements serializer.IRPCSerializer and panics on
// the first decode only, standing in for a one-off fault inside request
// handling (a driver bug, a nil-pointer slip) that the router must
// contain rather than let crash the process.
type panicOnceSerializer struct {
	serializer.IRPCSerializer
	panicked atomic.Bool
}

func (p *panicOnceSerializer) DeserializeRequest(b []byte) (*protocol.Request, error) {
	if !p.panicked.Swap(true) {
		panic("simulated fault decoding request")
	}
	return p.IRPCSerializer.DeserializeRequest(b)
}

func TestRouterRecoversFromPanicInRequestHandling(t *testing.T) {
	dir := t.TempDir()
	endpoint := filepath.Join(dir, "waldb.sock")

	r := New(Config{
		Endpoint:     endpoint,
		IdleTimeout:  0,
		MaxFrameSize: protocol.DefaultMaxFrameSize,
		WorkerConfig: worker.Config{IdleTimeout: time.Hour, InboxCapacity: 16},
	}, testLogger())
	// Installed before Serve starts, so there is no concurrent access to
	// the field once the accept loop is running.
	r.ser = &panicOnceSerializer{IRPCSerializer: serializer.NewJSONSerializer()}

	errCh := make(chan error, 1)
	go func() { errCh <- r.Serve() }()
	t.Cleanup(func() {
		r.Shutdown()
		select {
		case <-errCh:
		case <-time.After(time.Second):
		}
	})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := net.Dial("unix", endpoint); err == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp := roundTrip(t, endpoint, protocol.NewPingRequest(""))
	if resp.Status != "error" || resp.Code != protocol.CodeInternal {
		t.Fatalf("expected a recovered Internal error, got %+v", resp)
	}

	// The router must still be serving other connections afterward.
	resp = roundTrip(t, endpoint, protocol.NewPingRequest(""))
	if resp.Status != "ok" {
		t.Fatalf("expected router to keep serving after recovering from the panic, got %+v", resp)
	}
}

func TestRouterShutdownClosesListener(t *testing.T) {
	_, endpoint := startTestRouter(t)

	resp := roundTrip(t, endpoint, protocol.NewShutdownRequest())
	if resp.Status != "ok" {
		t.Fatalf("unexpected shutdown response: %+v", resp)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := net.Dial("unix", endpoint); err != nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("router listener at %s still accepting after Shutdown", endpoint)
}
