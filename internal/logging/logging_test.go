package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_WritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "railnav.log")
	log, err := New(Options{Level: "debug", Format: "json", File: path, Quiet: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Infow("rider joined", "rider_id", "R1")
	Sync(log)

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), `"rider_id":"R1"`) {
		t.Fatalf("log file missing field: %s", b)
	}
}

func TestNew_RejectsBadOptions(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatalf("bad level accepted")
	}
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatalf("bad format accepted")
	}
}

func TestNew_QuietWithoutFileIsNop(t *testing.T) {
	log, err := New(Options{Quiet: true})
	if err != nil || log == nil {
		t.Fatalf("quiet logger: %v", err)
	}
	log.Infow("dropped")
}
