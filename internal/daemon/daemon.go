// Package daemon wires the single-instance guard and the router together
// into the process the serve command runs: acquire the guard, start the
// router, block until it exits, release the guard, and translate any
// failure along the way into the daemon's exit-code contract.
package daemon

import (
	"errors"
	"net"
	"time"

	"github.com/vkolb/waldb/internal/guard"
	"github.com/vkolb/waldb/internal/protocol"
	"github.com/vkolb/waldb/internal/router"
	"github.com/vkolb/waldb/internal/worker"
	"github.com/vkolb/waldb/rpc/common"
)

// Exit codes returned by Run, matched by the serve command to the
// process's final os.Exit call.
const (
	ExitOK             = 0
	ExitAlreadyRunning = 1
	ExitBindFailed     = 2
	ExitFatalInit      = 3
)

// Run drives one daemon lifecycle to completion: acquiring the
// single-instance guard, serving the router until it shuts down (by
// client request or idle timeout), and releasing the guard on the way
// out. It returns the process exit code, never calling os.Exit itself.
func Run(cfg common.ServerConfig, logger common.ILogger) int {
	g, err := guard.Acquire(cfg.DataDir)
	if err != nil {
		logger.Errorf("%v", err)
		if isAlreadyRunning(err) {
			return ExitAlreadyRunning
		}
		return ExitFatalInit
	}
	defer g.Release()

	r := router.New(router.Config{
		Endpoint:     cfg.Endpoint,
		IdleTimeout:  cfg.RouterIdleTimeout,
		MaxFrameSize: cfg.MaxFrameSize,
		ConnTimeout:  time.Duration(cfg.TimeoutSecond) * time.Second,
		WorkerConfig: worker.Config{
			IdleTimeout:   cfg.WorkerIdleTimeout,
			InboxCapacity: cfg.WorkerInboxCapacity,
		},
	}, logger)

	logger.Infof("listening on %s", cfg.Endpoint)
	if err := r.Serve(); err != nil {
		logger.Errorf("router: %v", err)
		if isListenErr(err) {
			return ExitBindFailed
		}
		return ExitFatalInit
	}

	logger.Infof("router shut down cleanly")
	return ExitOK
}

// isListenErr reports whether err originated from the listener bind
// itself (net.Listen), as opposed to a failure while already serving.
func isListenErr(err error) bool {
	opErr, ok := err.(*net.OpError)
	return ok && opErr.Op == "listen"
}

// isAlreadyRunning reports whether err is the guard's AlreadyRunning
// classification, as opposed to some other acquisition failure (e.g. a
// permission error creating the data directory), which is a fatal init
// error rather than "another daemon already owns this data directory."
func isAlreadyRunning(err error) bool {
	var coded *protocol.CodedError
	return errors.As(err, &coded) && coded.Code == protocol.CodeAlreadyRunning
}
