package router

import (
	"fmt"
	"os"

	"github.com/vkolb/waldb/internal/protocol"
)

func errBadRequest(t protocol.RequestType) error {
	return fmt.Errorf("request type %s is not valid for the router", t)
}

func errMissingDB() error {
	return fmt.Errorf("request is missing a db path")
}

func removeFile(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
