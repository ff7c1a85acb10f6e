// Package router implements the process-global front door of the daemon:
// it owns the listening socket, decodes one framed request per
// connection round trip, answers router-scoped requests itself, and
// forwards database-scoped requests to the worker actor responsible for
// that database, spawning one on first reference.
package router

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vkolb/waldb/internal/protocol"
	"github.com/vkolb/waldb/internal/worker"
	"github.com/vkolb/waldb/rpc/common"
	"github.com/vkolb/waldb/rpc/serializer"
)

// shutdownDrainTimeout bounds how long the router waits for a single
// worker to react to a forwarded Shutdown before giving up on it during
// a router-wide shutdown.
const shutdownDrainTimeout = 5 * time.Second

// Config bounds the router's own behavior and the defaults handed to
// every worker it spawns.
type Config struct {
	Endpoint     string
	IdleTimeout  time.Duration
	MaxFrameSize uint32
	ConnTimeout  time.Duration
	WorkerConfig worker.Config
}

// Router accepts connections on a single unix domain socket and
// dispatches each request it reads to either its own handlers or a
// per-database worker.
type Router struct {
	cfg    Config
	logger common.ILogger
	ser    serializer.IRPCSerializer
	reg    *registry

	listener net.Listener

	startedAt   time.Time
	activeConns atomic.Int64
	lastActive  atomic.Int64 // unix nanoseconds

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New constructs a Router bound to cfg.Endpoint. The socket is not
// listened on until Serve is called.
func New(cfg Config, logger common.ILogger) *Router {
	return &Router{
		cfg:        cfg,
		logger:     logger,
		ser:        serializer.NewJSONSerializer(),
		reg:        newRegistry(cfg.WorkerConfig, logger),
		startedAt:  time.Now(),
		shutdownCh: make(chan struct{}),
	}
}

// Serve binds the listening socket and accepts connections until the
// router is told to shut down, either by a client Shutdown request or by
// its own idle timeout elapsing with no active connections and no live
// workers. It removes any stale socket file left behind by a crashed
// daemon before binding.
func (r *Router) Serve() error {
	_ = removeStaleSocket(r.cfg.Endpoint)

	ln, err := net.Listen("unix", r.cfg.Endpoint)
	if err != nil {
		return err
	}
	r.listener = ln
	r.touch()

	go r.idleWatchdog()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-r.shutdownCh:
				return nil
			default:
				return err
			}
		}
		r.activeConns.Add(1)
		go r.serveConn(conn)
	}
}

// Addr returns the listener's address; useful for tests that bind to an
// OS-assigned path.
func (r *Router) Addr() net.Addr {
	return r.listener.Addr()
}

func (r *Router) touch() {
	r.lastActive.Store(time.Now().UnixNano())
}

// idleWatchdog exits the router once it has been idle for IdleTimeout
// with no active connections and no live workers. A worker that is
// merely Closed (as opposed to having exited) still counts as live: it
// occupies registry state until an explicit Shutdown removes it.
func (r *Router) idleWatchdog() {
	if r.cfg.IdleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(r.cfg.IdleTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-r.shutdownCh:
			return
		case <-ticker.C:
			idleFor := time.Since(time.Unix(0, r.lastActive.Load()))
			if idleFor < r.cfg.IdleTimeout {
				continue
			}
			if r.activeConns.Load() > 0 {
				continue
			}
			if len(r.reg.snapshotAll()) > 0 {
				continue
			}
			r.logger.Infof("router idle for %s with no connections and no workers, shutting down", idleFor)
			r.Shutdown()
			return
		}
	}
}

// Shutdown broadcasts Shutdown to every live worker, closes the
// listener, and unblocks Serve. Safe to call more than once.
func (r *Router) Shutdown() {
	r.shutdownOnce.Do(func() {
		close(r.shutdownCh)
		r.reg.shutdownAll(shutdownDrainTimeout)
		if r.listener != nil {
			_ = r.listener.Close()
		}
		_ = removeStaleSocket(r.cfg.Endpoint)
	})
}

func (r *Router) serveConn(conn net.Conn) {
	defer r.activeConns.Add(-1)
	defer conn.Close()

	var scratch []byte
	for {
		if r.cfg.ConnTimeout > 0 {
			conn.SetDeadline(time.Now().Add(r.cfg.ConnTimeout))
		}

		payload, err := protocol.ReadFrame(conn, scratch, r.cfg.MaxFrameSize)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.logger.Debugf("connection closed: %v", err)
			}
			return
		}
		scratch = payload

		resp := r.safeHandleFrame(payload)
		r.touch()

		out, err := r.ser.SerializeResponse(resp)
		if err != nil {
			r.logger.Errorf("serialize response: %v", err)
			return
		}
		if err := protocol.WriteFrame(conn, out); err != nil {
			r.logger.Debugf("write response: %v", err)
			return
		}
	}
}

func (r *Router) handleFrame(payload []byte) *protocol.Response {
	req, err := r.ser.DeserializeRequest(payload)
	if err != nil {
		return protocol.NewErrorResponse(protocol.CodeBadRequest, err)
	}
	return r.dispatch(req)
}

// safeHandleFrame wraps handleFrame with a panic barrier: a fault while
// decoding or dispatching one request answers that request with an
// Internal error and keeps the connection (and every other connection
// and worker) alive, instead of an unrecovered panic taking down the
// whole daemon process.
func (r *Router) safeHandleFrame(payload []byte) (resp *protocol.Response) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Errorf("recovered from panic handling request: %v", p)
			resp = protocol.NewErrorResponse(protocol.CodeInternal, fmt.Errorf("router: panic: %v", p))
		}
	}()
	return r.handleFrame(payload)
}

// dispatch answers router-scoped requests directly and forwards
// database-scoped requests to the worker actor that owns req.Db.
func (r *Router) dispatch(req *protocol.Request) *protocol.Response {
	requestsServed.Inc()

	switch req.Type {
	case protocol.ReqShutdown:
		// Run to completion (broadcast, await every worker, close the
		// listener) before answering, so the response confirms shutdown
		// actually finished rather than racing it.
		r.Shutdown()
		return protocol.NewShutdownResponse()
	case protocol.ReqStatus:
		return r.handleStatus()
	case protocol.ReqPing:
		if req.Db == "" {
			return protocol.NewPingResponse(worker.Version, "", nil, false)
		}
	}

	if !req.Type.IsWorkerScoped() && req.Type != protocol.ReqPing {
		return protocol.NewErrorResponse(protocol.CodeBadRequest, errBadRequest(req.Type))
	}
	if req.Db == "" {
		return protocol.NewErrorResponse(protocol.CodeBadRequest, errMissingDB())
	}

	dbPath, err := canonicalDBPath(req.Db)
	if err != nil {
		return protocol.NewErrorResponse(protocol.CodeBadRequest, err)
	}

	w := r.reg.getOrSpawn(dbPath)
	resp, err := w.Submit(req)
	if err != nil {
		return protocol.NewErrorResponse(protocol.CodeBusy, err)
	}
	return resp
}

func (r *Router) handleStatus() *protocol.Response {
	entries := r.reg.snapshotAll()
	statuses := make([]protocol.WorkerStatus, 0, len(entries))
	for _, e := range entries {
		statuses = append(statuses, e.status)
	}
	uptime := int64(time.Since(r.startedAt).Seconds())
	return protocol.NewStatusResponse(statuses, uptime, int64(requestsServed.Get()))
}

type snapshotEntry struct {
	db     string
	status protocol.WorkerStatus
}

func shutdownRequest() *protocol.Request {
	return protocol.NewShutdownRequest()
}

func removeStaleSocket(endpoint string) error {
	if endpoint == "" {
		return nil
	}
	if _, err := net.Dial("unix", endpoint); err == nil {
		return errors.New("router: endpoint already has a live listener")
	}
	err := removeFile(endpoint)
	return err
}
