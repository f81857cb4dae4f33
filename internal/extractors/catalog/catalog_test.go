package catalog

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/kirides/daedalus-index/internal/diag"
	"github.com/kirides/daedalus-index/internal/extractors"
	"github.com/kirides/daedalus-index/internal/symbols"
)

func TestSourceTag(t *testing.T) {
	tests := []struct {
		file string
		want string
	}{
		{"methods.json", symbols.SourceInternal},
		{"ikarus.methods.json", "ikarus"},
		{"/opt/completion/lego.methods.json", "lego"},
		{"Ikarus.Extra.methods.json", "Ikarus"},
		{"methods", symbols.SourceInternal},
	}
	for _, tt := range tests {
		if got := SourceTag(tt.file); got != tt.want {
			t.Errorf("SourceTag(%q) = %q, want %q", tt.file, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	content := []byte(`[
		{"name": "Print", "detail": "void Print(var string s)", "desc": "prints s", "source": ""},
		{"name": "MEM_Alloc", "detail": "int MEM_Alloc(var int size)", "desc": "", "source": "ikarus_core"},
		{"name": "Hlp_Random", "detail": "int Hlp_Random(var int max)", "params": ["var int n"]},
		{"name": "", "detail": "void Nameless()"},
		{"name": "Wld_X", "detail": "()"}
	]`)

	decls, err := Parse("ikarus.methods.json", content)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(decls) != 4 {
		t.Fatalf("expected 4 declarations (nameless dropped), got %d", len(decls))
	}

	p := decls[0]
	if p.Source != "ikarus" {
		t.Errorf("blank source should fall back to file tag, got %q", p.Source)
	}
	if !reflect.DeepEqual(p.Params, []string{"var string s"}) {
		t.Errorf("params from detail: got %#v", p.Params)
	}
	if p.Line != symbols.UnknownLine {
		t.Errorf("catalog line should be unknown, got %d", p.Line)
	}
	if p.Doc != "prints s" || p.Signature != "void Print(var string s)" {
		t.Errorf("unexpected declaration: %+v", p)
	}

	if decls[1].Source != "ikarus_core" {
		t.Errorf("explicit source not kept: %q", decls[1].Source)
	}
	if !reflect.DeepEqual(decls[2].Params, []string{"var int n"}) {
		t.Errorf("explicit params should win over detail, got %#v", decls[2].Params)
	}
	if len(decls[3].Params) != 0 {
		t.Errorf("short detail should yield no params, got %#v", decls[3].Params)
	}
}

func TestParse_MissingDetail(t *testing.T) {
	decls, err := Parse("methods.json", []byte(`[{"name": "Snd_Play", "desc": "plays"}, {"name": "AI_Wait", "detail": "   "}]`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(decls) != 2 {
		t.Fatalf("expected 2 declarations, got %d", len(decls))
	}
	for _, d := range decls {
		if d.Signature != d.Name {
			t.Errorf("%s: signature should fall back to the name, got %q", d.Name, d.Signature)
		}
		if len(d.Params) != 0 {
			t.Errorf("%s: expected no params, got %#v", d.Name, d.Params)
		}
	}
}

func TestExtract_Malformed(t *testing.T) {
	e := New("")
	_, err := e.Extract(context.Background(), extractors.File{
		Path:    "/c/methods.json",
		Rel:     "methods.json",
		Content: []byte(`{"name": "not an array"`),
	})
	if err == nil {
		t.Fatal("expected error for malformed catalog")
	}
	if !errors.Is(err, diag.ErrMalformedCatalog) {
		t.Errorf("error should wrap ErrMalformedCatalog: %v", err)
	}
	if diag.Classify(err) != diag.KindMalformedCatalog {
		t.Errorf("unexpected classification %q", diag.Classify(err))
	}
}

func TestAccepts(t *testing.T) {
	e := New(DefaultSuffix)
	for path, want := range map[string]bool{
		"methods.json":        true,
		"IKARUS.METHODS.JSON": true,
		"lego.methods.json":   true,
		"methods.json.bak":    false,
		"keywords.csv":        false,
	} {
		if got := e.Accepts(path); got != want {
			t.Errorf("Accepts(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestRecordsRoundTrip(t *testing.T) {
	decls := []symbols.Declaration{{
		Name: "Foo", Signature: "void Foo(var int a)", Params: []string{"var int a"},
		Doc: "does X", Source: "content/a.d", Line: 4,
	}}
	recs := Records(decls)
	if len(recs) != 1 || recs[0].Detail != "void Foo(var int a)" || recs[0].Desc != "does X" {
		t.Errorf("unexpected records: %+v", recs)
	}
}
