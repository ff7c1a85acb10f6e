package router

import (
	"errors"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/vkolb/waldb/internal/worker"
	"github.com/vkolb/waldb/rpc/common"
)

// shutdownRetryInterval bounds how long shutdownWorker waits between
// Submit attempts that failed with ErrBusy.
const shutdownRetryInterval = 5 * time.Millisecond

// registry maps a database path to the single worker actor serving it,
// spawning workers lazily and exactly once per path under concurrent
// access.
type registry struct {
	workers *xsync.MapOf[string, *worker.Worker]

	cfg    worker.Config
	logger common.ILogger

	mu sync.Mutex // guards spawn-under-contention below
}

func newRegistry(cfg worker.Config, logger common.ILogger) *registry {
	return &registry{
		workers: xsync.NewMapOf[string, *worker.Worker](),
		cfg:     cfg,
		logger:  logger,
	}
}

// getOrSpawn returns the worker for db, spawning one if this is the first
// request to reference it. Concurrent callers racing on the same new path
// all observe the same worker; only one Spawn happens.
func (r *registry) getOrSpawn(db string) *worker.Worker {
	if w, ok := r.workers.Load(db); ok && !isDead(w) {
		return w
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.workers.Load(db); ok && !isDead(w) {
		return w
	}

	w := worker.Spawn(db, r.cfg, r.logger)
	r.workers.Store(db, w)

	go r.reapOnExit(db, w)

	return w
}

// reapOnExit removes a worker from the registry once it has exited (idle
// self-termination or Shutdown), so the next request for that path spawns
// a fresh one instead of reusing a dead actor.
func (r *registry) reapOnExit(db string, w *worker.Worker) {
	<-w.Done()
	r.workers.Compute(db, func(cur *worker.Worker, loaded bool) (*worker.Worker, bool) {
		if !loaded || cur != w {
			return cur, false
		}
		return nil, true
	})
}

func isDead(w *worker.Worker) bool {
	select {
	case <-w.Done():
		return true
	default:
		return false
	}
}

// snapshotAll returns a status snapshot of every worker presently
// registered, for the Status introspection request.
func (r *registry) snapshotAll() []snapshotEntry {
	var out []snapshotEntry
	r.workers.Range(func(db string, w *worker.Worker) bool {
		out = append(out, snapshotEntry{db: db, status: w.Snapshot()})
		return true
	})
	return out
}

// shutdownAll sends Shutdown to every live worker and waits for each to
// exit, bounding the wait by deadline.
func (r *registry) shutdownAll(deadline time.Duration) {
	var wg sync.WaitGroup
	r.workers.Range(func(db string, w *worker.Worker) bool {
		wg.Add(1)
		go func(w *worker.Worker) {
			defer wg.Done()
			shutdownWorker(w, deadline)
		}(w)
		return true
	})
	wg.Wait()
}

// shutdownWorker submits Shutdown to w, retrying on ErrBusy (a full
// inbox does not mean the worker received the command) until it is
// accepted, the worker exits on its own, or deadline elapses. A single
// ErrBusy must never be mistaken for "the worker has shut down": that
// would let the router close its listener, and the process exit, while
// the worker's handle was never checkpointed and released.
func shutdownWorker(w *worker.Worker, deadline time.Duration) {
	deadlineAt := time.Now().Add(deadline)
	submitted := make(chan struct{})

	go func() {
		defer close(submitted)
		for {
			select {
			case <-w.Done():
				return
			default:
			}

			_, err := w.Submit(shutdownRequest())
			if err == nil || !errors.Is(err, worker.ErrBusy) {
				return
			}
			if time.Now().After(deadlineAt) {
				return
			}
			time.Sleep(shutdownRetryInterval)
		}
	}()

	select {
	case <-submitted:
	case <-w.Done():
	case <-time.After(deadline):
	}
}
