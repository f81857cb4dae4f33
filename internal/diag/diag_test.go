package diag

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestClassify(t *testing.T) {
	_, statErr := os.Stat(filepath.Join(t.TempDir(), "nope.d"))

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"file error not exist", NewFileError("read", "a.d", fs.ErrNotExist), KindMissingFile},
		{"file error permission", NewFileError("read", "a.d", fs.ErrPermission), KindUnreadableFile},
		{"bare os error", statErr, KindMissingFile},
		{"malformed catalog", fmt.Errorf("%w: x.methods.json: bad", ErrMalformedCatalog), KindMalformedCatalog},
		{"wrapped file error", fmt.Errorf("walking: %w", NewFileError("read", "b.src", fs.ErrNotExist)), KindMissingFile},
		{"anything else", errors.New("boom"), KindUnreadableFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestFileErrorUnwrap(t *testing.T) {
	err := NewFileError("read manifest", "Gothic.src", fs.ErrNotExist)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Error("FileError should unwrap to fs.ErrNotExist")
	}
	if err.Error() != "read manifest Gothic.src: file does not exist" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestCollectorItemsSorted(t *testing.T) {
	c := NewCollector("test")

	var wg sync.WaitGroup
	for _, p := range []string{"c.d", "a.d", "b.d"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Report(p, NewFileError("read", p, fs.ErrNotExist))
		}()
	}
	wg.Wait()

	items := c.Items()
	if c.Len() != 3 || len(items) != 3 {
		t.Fatalf("expected 3 diagnostics, got %d", len(items))
	}
	for i, want := range []string{"a.d", "b.d", "c.d"} {
		if items[i].Path != want {
			t.Errorf("items[%d].Path = %q, want %q", i, items[i].Path, want)
		}
		if items[i].Kind != KindMissingFile {
			t.Errorf("items[%d].Kind = %q, want %q", i, items[i].Kind, KindMissingFile)
		}
	}
}
