// Package serializer provides message serialization for the daemon's RPC
// envelopes. The wire protocol mandates UTF-8 JSON payloads, so this
// package carries a single JSON implementation behind the same
// IRPCSerializer interface the rest of the RPC stack programs against.
//
// Key Components:
//
//   - IRPCSerializer: the interface request/response encode/decode code
//     depends on, rather than on encoding/json directly.
//
//   - jsonSerializerImpl: the JSON implementation, using encoding/json.
//
// Thread Safety:
//
//	The serializer is stateless and safe for concurrent use across
//	multiple goroutines without additional synchronization.
package serializer
