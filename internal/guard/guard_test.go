package guard

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vkolb/waldb/internal/protocol"
)

func TestAcquireWritesPidFile(t *testing.T) {
	dir := t.TempDir()

	g, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer g.Release()

	data, err := os.ReadFile(filepath.Join(dir, PIDFileName))
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty pid file")
	}
}

func TestSecondAcquireFails(t *testing.T) {
	dir := t.TempDir()

	g, err := Acquire(dir)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer g.Release()

	_, err = Acquire(dir)
	if err == nil {
		t.Fatal("expected second Acquire to fail while first holds the lock")
	}
	var coded *protocol.CodedError
	if !errors.As(err, &coded) || coded.Code != protocol.CodeAlreadyRunning {
		t.Fatalf("expected an AlreadyRunning coded error, got: %v", err)
	}
}

func TestReleaseThenAcquireAgainSucceeds(t *testing.T) {
	dir := t.TempDir()

	g, err := Acquire(dir)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if err := g.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	g2, err := Acquire(dir)
	if err != nil {
		t.Fatalf("second Acquire after release: %v", err)
	}
	g2.Release()
}
