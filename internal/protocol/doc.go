// Package protocol defines the wire format spoken on the daemon's IPC
// endpoint: the length-prefixed frame codec and the JSON request/response
// envelopes exchanged once a frame's payload has been extracted.
//
// The package focuses on:
//   - Frame: the 4-byte little-endian length prefix plus UTF-8 JSON payload
//     framing used for every message on the connection.
//   - Request / Response: the discriminated-union envelopes carrying every
//     request kind (Ping, ExecBatch, PrepareForMaintenance, CloseDatabase,
//     ReopenDatabase, Shutdown, and the router's Status introspection
//     command) and their corresponding success/error responses.
//   - ErrorCode: the stable machine-readable error codes surfaced to
//     clients in error responses.
package protocol
