package destination

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/djlord-it/easy-relay/internal/domain"
)

func TestFile_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.jsonl")
	f := NewFile(path)

	for i := 0; i < 3; i++ {
		result := f.Attempt(context.Background(), "", testPayload())
		if !result.Succeeded {
			t.Fatalf("attempt %d failed: %s", i, result.Message)
		}
	}

	fh, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer fh.Close()

	lines := 0
	scanner := bufio.NewScanner(fh)
	for scanner.Scan() {
		var p domain.Payload
		if err := json.Unmarshal(scanner.Bytes(), &p); err != nil {
			t.Fatalf("line %d is not a payload: %v", lines, err)
		}
		if p.PayloadUniqueCode != "UC123" {
			t.Errorf("line %d unique code = %q", lines, p.PayloadUniqueCode)
		}
		lines++
	}
	if lines != 3 {
		t.Errorf("lines = %d, want 3", lines)
	}
}

func TestFile_UnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	// A regular file cannot be used as a parent directory.
	result := NewFile(filepath.Join(blocker, "out.jsonl")).Attempt(context.Background(), "", testPayload())
	if result.Succeeded {
		t.Fatal("expected failure for unwritable path")
	}
}
