package worker

import (
	"errors"
	"fmt"

	"github.com/vkolb/waldb/internal/protocol"
)

// Version is reported in Ping responses, independent of any client build.
const Version = "1"

func errDatabaseClosed(dbPath string) error {
	return fmt.Errorf("database %s is closed", dbPath)
}

func errAlreadyClosed(dbPath string) error {
	return fmt.Errorf("database %s is already closed", dbPath)
}

func errNotOpen(dbPath string) error {
	return fmt.Errorf("database %s is not open", dbPath)
}

func errAlreadyOpen(dbPath string) error {
	return fmt.Errorf("database %s is already open", dbPath)
}

func errEmptyBatch() error {
	return fmt.Errorf("statement batch must not be empty")
}

func errOpenFailed(dbPath string) error {
	return fmt.Errorf("failed to open database %s", dbPath)
}

func errBadRequest(t protocol.RequestType) error {
	return fmt.Errorf("request type %s is not valid for a worker", t)
}

// engineErrCode extracts the stable ErrorCode attached by the engine
// package, falling back to Internal for errors it never classified.
func engineErrCode(err error) protocol.ErrorCode {
	var coded *protocol.CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return protocol.CodeInternal
}
