// Package worker implements the per-database actor: it owns the
// exclusive write handle to one database file, serializes every command
// through a single inbox, drives the Open/Closed maintenance state
// machine, and self-terminates on idleness.
package worker

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/vkolb/waldb/internal/engine"
	"github.com/vkolb/waldb/internal/protocol"
	"github.com/vkolb/waldb/rpc/common"
)

// ErrBusy is returned by Submit when the worker's inbox is full. Callers
// must translate this into a Busy-coded error response rather than
// blocking the caller indefinitely.
var ErrBusy = errors.New("worker: inbox is full")

// State is the worker's maintenance-state-machine position.
type State int32

const (
	StateOpen State = iota
	StateClosed
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// Config bounds a worker's resource usage and idle behavior.
type Config struct {
	IdleTimeout   time.Duration
	InboxCapacity int
}

// workItem pairs one request with the channel its single response is
// delivered on.
type workItem struct {
	req      *protocol.Request
	resultCh chan *protocol.Response
}

// Worker is the per-database actor. All fields but the atomics below are
// only ever touched from the run loop goroutine; external callers talk to
// the worker exclusively through Submit and the atomic status snapshot.
type Worker struct {
	dbPath string
	cfg    Config
	logger common.ILogger

	inbox chan workItem
	done  chan struct{}

	eng      *engine.Engine
	state    State
	lastErr  error

	lastActivity  atomic.Int64 // unix nanoseconds
	batchesServed atomic.Int64
	atomicState   atomic.Int32
}

// Spawn starts a new worker for dbPath and returns immediately; the
// worker attempts to open the database in the background and begins
// serving its inbox regardless of whether that attempt succeeds (a
// failed open leaves it Closed, still able to answer Ping/ReopenDatabase).
func Spawn(dbPath string, cfg Config, logger common.ILogger) *Worker {
	w := &Worker{
		dbPath: dbPath,
		cfg:    cfg,
		logger: logger,
		inbox:  make(chan workItem, cfg.InboxCapacity),
		done:   make(chan struct{}),
	}
	w.atomicState.Store(int32(StateClosed))
	go w.run()
	return w
}

// Submit enqueues req and blocks for its response. It returns ErrBusy
// without blocking when the inbox is already full.
func (w *Worker) Submit(req *protocol.Request) (*protocol.Response, error) {
	item := workItem{req: req, resultCh: make(chan *protocol.Response, 1)}

	select {
	case w.inbox <- item:
	default:
		return nil, ErrBusy
	}

	resp := <-item.resultCh
	return resp, nil
}

// Done returns a channel closed once the worker's run loop has exited
// (either by explicit Shutdown or by idle self-termination).
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Snapshot reports the worker's current status for the router's Status
// introspection response. Safe to call concurrently with Submit.
func (w *Worker) Snapshot() protocol.WorkerStatus {
	state := State(w.atomicState.Load())
	lastActivity := time.Unix(0, w.lastActivity.Load())
	return protocol.WorkerStatus{
		Db:            w.dbPath,
		State:         state.String(),
		LastActivity:  lastActivity.UTC().Format(time.RFC3339),
		BatchesServed: w.batchesServed.Load(),
	}
}

// --------------------------------------------------------------------------
// Run Loop
// --------------------------------------------------------------------------

func (w *Worker) run() {
	defer close(w.done)

	w.touch()
	w.attemptOpen()

	idleTimer := time.NewTimer(w.cfg.IdleTimeout)
	defer idleTimer.Stop()

	for {
		select {
		case item, ok := <-w.inbox:
			if !ok {
				return
			}
			idleTimer.Stop()

			resp, shutdown := w.safeHandle(item.req)
			item.resultCh <- resp

			w.touch()
			if item.req.Type == protocol.ReqExecBatch {
				w.batchesServed.Add(1)
			}

			if shutdown {
				return
			}
			idleTimer.Reset(w.cfg.IdleTimeout)

		case <-idleTimer.C:
			if w.state == StateOpen && len(w.inbox) == 0 {
				w.logger.Infof("worker for %s idle for %s, closing and exiting", w.dbPath, w.cfg.IdleTimeout)
				w.doClose()
				return
			}
			idleTimer.Reset(w.cfg.IdleTimeout)
		}
	}
}

func (w *Worker) touch() {
	w.lastActivity.Store(time.Now().UnixNano())
}

func (w *Worker) setState(s State) {
	w.state = s
	w.atomicState.Store(int32(s))
}

// attemptOpen tries to open the engine, transitioning to Open on success
// and remaining (or becoming) Closed on failure, recording the error for
// diagnostics.
func (w *Worker) attemptOpen() {
	eng, err := engine.Open(w.dbPath, w.logger)
	if err != nil {
		w.lastErr = err
		w.setState(StateClosed)
		w.logger.Errorf("failed to open %s: %v", w.dbPath, err)
		return
	}
	w.eng = eng
	w.lastErr = nil
	w.setState(StateOpen)
}

// doClose performs the CloseDatabase steps: a final checkpoint, then
// releasing the connection and all file locks.
func (w *Worker) doClose() {
	if w.eng == nil {
		w.setState(StateClosed)
		return
	}
	if err := w.eng.Close(); err != nil {
		w.logger.Errorf("error closing %s: %v", w.dbPath, err)
	}
	w.eng = nil
	w.setState(StateClosed)
}

// --------------------------------------------------------------------------
// Command Dispatch
// --------------------------------------------------------------------------

// safeHandle wraps handle with a panic barrier so that a fault specific
// to one database (a driver bug, a nil-pointer slip in handle itself)
// only takes down this worker, not the daemon process. A recovered
// panic transitions the worker to Closed, the same place an I/O error
// on the handle would leave it, and is reported as an Internal error
// rather than crashing the connection.
func (w *Worker) safeHandle(req *protocol.Request) (resp *protocol.Response, shutdown bool) {
	defer func() {
		if p := recover(); p != nil {
			w.logger.Errorf("worker for %s: recovered from panic handling %s: %v", w.dbPath, req.Type, p)
			w.doClose()
			resp = protocol.NewErrorResponse(protocol.CodeInternal, fmt.Errorf("worker: panic: %v", p))
			shutdown = false
		}
	}()
	return w.handle(req)
}

func (w *Worker) handle(req *protocol.Request) (resp *protocol.Response, shutdown bool) {
	switch req.Type {
	case protocol.ReqPing:
		return w.handlePing(), false
	case protocol.ReqExecBatch:
		return w.handleExecBatch(req), false
	case protocol.ReqPrepareForMaintenance:
		return w.handlePrepareForMaintenance(), false
	case protocol.ReqCloseDatabase:
		return w.handleCloseDatabase(), false
	case protocol.ReqReopenDatabase:
		return w.handleReopenDatabase(), false
	case protocol.ReqShutdown:
		if w.state == StateOpen {
			w.doClose()
		}
		return protocol.NewShutdownResponse(), true
	default:
		return protocol.NewErrorResponse(protocol.CodeBadRequest, errBadRequest(req.Type)), false
	}
}

func (w *Worker) handlePing() *protocol.Response {
	if w.state == StateClosed {
		return protocol.NewPingResponse("", w.dbPath, nil, true)
	}
	rev, err := w.eng.CurrentRevision()
	if err != nil {
		return protocol.NewErrorResponse(engineErrCode(err), err)
	}
	return protocol.NewPingResponse(Version, w.dbPath, &rev, false)
}

func (w *Worker) handleExecBatch(req *protocol.Request) *protocol.Response {
	if w.state == StateClosed {
		return protocol.NewErrorResponse(protocol.CodeDatabaseClosed, errDatabaseClosed(w.dbPath))
	}

	if len(req.Stmts) == 0 {
		return protocol.NewErrorResponse(protocol.CodeBadRequest, errEmptyBatch())
	}

	for _, stmt := range req.Stmts {
		if err := stmt.Validate(); err != nil {
			return protocol.NewErrorResponse(protocol.CodeBadRequest, err)
		}
	}

	rev, rowsAffected, err := w.eng.ExecBatch(req.Stmts, req.Tx)
	if err != nil {
		return protocol.NewErrorResponse(engineErrCode(err), err)
	}
	return protocol.NewExecBatchResponse(rev, rowsAffected)
}

func (w *Worker) handlePrepareForMaintenance() *protocol.Response {
	if w.state == StateClosed {
		return protocol.NewErrorResponse(protocol.CodeNotOpen, errNotOpen(w.dbPath))
	}
	if err := w.eng.Checkpoint(); err != nil {
		return protocol.NewErrorResponse(engineErrCode(err), err)
	}
	return protocol.NewPrepareForMaintenanceResponse()
}

func (w *Worker) handleCloseDatabase() *protocol.Response {
	if w.state == StateClosed {
		return protocol.NewErrorResponse(protocol.CodeAlreadyClosed, errAlreadyClosed(w.dbPath))
	}
	w.doClose()
	return protocol.NewCloseDatabaseResponse()
}

// handleReopenDatabase re-opens a Closed worker. Called on an already
// Open worker, it is rejected as AlreadyOpen rather than treated as
// idempotent, matching the ground-truth worker's "Database is already
// open" rejection.
func (w *Worker) handleReopenDatabase() *protocol.Response {
	if w.state == StateOpen {
		return protocol.NewErrorResponse(protocol.CodeAlreadyOpen, errAlreadyOpen(w.dbPath))
	}

	w.attemptOpen()
	if w.state != StateOpen {
		err := w.lastErr
		if err == nil {
			err = errOpenFailed(w.dbPath)
		}
		return protocol.NewErrorResponse(protocol.CodeOpenFailed, err)
	}

	rev, err := w.eng.CurrentRevision()
	if err != nil {
		return protocol.NewErrorResponse(engineErrCode(err), err)
	}
	return protocol.NewReopenDatabaseResponse(rev)
}
