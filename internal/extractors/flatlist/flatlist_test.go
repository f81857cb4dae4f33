package flatlist

import (
	"context"
	"testing"

	"github.com/kirides/daedalus-index/internal/extractors"
	"github.com/kirides/daedalus-index/internal/symbols"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line     string
		wantName string
		wantDoc  string
	}{
		{"TORCH@a burning torch", "TORCH", "a burning torch"},
		{"func", "func", ""},
		{"  var  ", "var", ""},
		{"@leading", "@leading", ""},
		{"HERO @ the player @ second line  ", "HERO", " the player\n second line"},
		{"X@", "X", ""},
	}
	for _, tt := range tests {
		name, doc := ParseLine(tt.line)
		if name != tt.wantName || doc != tt.wantDoc {
			t.Errorf("ParseLine(%q) = (%q, %q), want (%q, %q)", tt.line, name, doc, tt.wantName, tt.wantDoc)
		}
	}
}

func TestParse_SkipsCommentsAndBlanks(t *testing.T) {
	content := []byte("// header\r\n\r\nTRUE@1\r\n   \r\nFALSE\r\n")
	entries := Parse(symbols.KindConstant, content)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(entries), entries)
	}
	if entries[0].Name != "TRUE" || entries[0].Doc != "1" || entries[0].Kind != symbols.KindConstant {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Name != "FALSE" || entries[1].Doc != "" {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}
}

func TestExtractor_KindByFileName(t *testing.T) {
	e := New(map[string]symbols.Kind{
		"keywords.csv":  symbols.KindKeyword,
		"constants.csv": symbols.KindConstant,
		"":              symbols.KindVariable,
	})

	if !e.Accepts("/x/Keywords.CSV") {
		t.Error("file names should match case-insensitively")
	}
	if e.Accepts("/x/variables.csv") {
		t.Error("unmapped list should not be accepted")
	}

	res, err := e.Extract(context.Background(), extractors.File{
		Path:    "/x/keywords.csv",
		Content: []byte("instance@declares an instance\nfunc"),
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(res.Entries) != 2 || res.Entries[0].Kind != symbols.KindKeyword {
		t.Errorf("unexpected entries: %+v", res.Entries)
	}
}
