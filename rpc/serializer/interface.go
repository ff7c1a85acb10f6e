package serializer

import "github.com/vkolb/waldb/internal/protocol"

// IRPCSerializer is the interface for encoding/decoding the daemon's
// request and response envelopes to and from their wire representation.
type IRPCSerializer interface {
	// SerializeRequest encodes a Request into its wire representation.
	SerializeRequest(req *protocol.Request) ([]byte, error)
	// DeserializeRequest decodes a wire payload into a Request.
	DeserializeRequest(b []byte) (*protocol.Request, error)
	// SerializeResponse encodes a Response into its wire representation.
	SerializeResponse(resp *protocol.Response) ([]byte, error)
	// DeserializeResponse decodes a wire payload into a Response.
	DeserializeResponse(b []byte) (*protocol.Response, error)
}
