package serializer

import (
	"encoding/json"

	"github.com/vkolb/waldb/internal/protocol"
)

// NewJSONSerializer creates a new serializer using JSON encoding. This is
// the only IRPCSerializer implementation the daemon ships, since the wire
// protocol mandates JSON rather than leaving the payload format
// configurable.
func NewJSONSerializer() IRPCSerializer {
	return &jsonSerializerImpl{}
}

type jsonSerializerImpl struct{}

func (j jsonSerializerImpl) SerializeRequest(req *protocol.Request) ([]byte, error) {
	return json.Marshal(req)
}

func (j jsonSerializerImpl) DeserializeRequest(b []byte) (*protocol.Request, error) {
	var req protocol.Request
	if err := json.Unmarshal(b, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (j jsonSerializerImpl) SerializeResponse(resp *protocol.Response) ([]byte, error) {
	return json.Marshal(resp)
}

func (j jsonSerializerImpl) DeserializeResponse(b []byte) (*protocol.Response, error) {
	var resp protocol.Response
	if err := json.Unmarshal(b, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
