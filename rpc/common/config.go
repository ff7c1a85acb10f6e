package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Daemon (server-side) configuration
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters for one daemon instance:
// the router, its accept endpoint, and the default policy handed to every
// worker it spawns.
type ServerConfig struct {
	// DataDir is the directory that holds the daemon's managed database
	// files, the single-instance guard's PID file, and the default socket.
	DataDir string

	// Endpoint is the local IPC address the router listens on (a unix
	// domain socket path).
	Endpoint string

	// RouterIdleTimeout is how long the router waits, with no accepted
	// requests and no live workers, before it exits on its own.
	RouterIdleTimeout time.Duration

	// WorkerIdleTimeout is how long a worker waits, with an empty inbox,
	// before it closes its database and exits.
	WorkerIdleTimeout time.Duration

	// WorkerInboxCapacity bounds how many queued commands a worker will
	// hold before returning Busy to new callers.
	WorkerInboxCapacity int

	// MaxFrameSize bounds the size of a single framed message, in bytes.
	MaxFrameSize uint32

	// TimeoutSecond bounds read/write deadlines on client connections; 0
	// disables deadlines.
	TimeoutSecond int64

	// LogLevel is the level at which logs will be emitted (debug, info,
	// warn, error).
	LogLevel string
}

// String returns a formatted, human-readable representation of the
// configuration, printed once at startup for operational diagnostics.
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Daemon")
	addField("Data Directory", c.DataDir)
	addField("Endpoint", c.Endpoint)
	addField("Log Level", c.LogLevel)

	addSection("Timeouts")
	addField("Router Idle Timeout", c.RouterIdleTimeout.String())
	addField("Worker Idle Timeout", c.WorkerIdleTimeout.String())
	addField("Connection Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	addSection("Limits")
	addField("Worker Inbox Capacity", strconv.Itoa(c.WorkerInboxCapacity))
	addField("Max Frame Size", fmt.Sprintf("%d bytes", c.MaxFrameSize))

	return sb.String()
}

// --------------------------------------------------------------------------
// Client (admin CLI) configuration
// --------------------------------------------------------------------------

// ClientConfig holds the parameters used by the small administrative
// client (the `waldb status`/`waldb ping` commands) to reach a running
// daemon over its unix socket.
type ClientConfig struct {
	Endpoint      string
	TimeoutSecond int
}

// String returns a formatted, human-readable representation of the client
// configuration.
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	return sb.String()
}
