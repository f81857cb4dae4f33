package symbols

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// Snapshot is one immutable generation of the index. All accessors are safe
// for concurrent use; returned values are deep copies.
type Snapshot struct {
	Meta Meta

	keywords  []Entry
	constants []Entry
	variables []Entry
	decls     []Declaration

	byName map[string]int
	byKey  map[string]int
}

// Empty returns the generation-zero snapshot.
func Empty() *Snapshot {
	return NewBuilder().Build(Meta{})
}

// Keywords returns the keyword entries in insertion order.
func (s *Snapshot) Keywords() []Entry { return slices.Clone(s.keywords) }

// Constants returns the constant entries in insertion order.
func (s *Snapshot) Constants() []Entry { return slices.Clone(s.constants) }

// Variables returns the variable entries in insertion order.
func (s *Snapshot) Variables() []Entry { return slices.Clone(s.variables) }

// Declarations returns the declarations in insertion order.
func (s *Snapshot) Declarations() []Declaration {
	out := make([]Declaration, len(s.decls))
	for i, d := range s.decls {
		out[i] = d.clone()
	}
	return out
}

// Declaration looks up a declaration by its exact name.
func (s *Snapshot) Declaration(name string) (Declaration, bool) {
	idx, ok := s.byName[name]
	if !ok {
		return Declaration{}, false
	}
	return s.decls[idx].clone(), true
}

// DeclarationFold looks up a declaration ignoring case.
func (s *Snapshot) DeclarationFold(name string) (Declaration, bool) {
	idx, ok := s.byKey[Key(name)]
	if !ok {
		return Declaration{}, false
	}
	return s.decls[idx].clone(), true
}

func (d Declaration) clone() Declaration {
	d.Params = slices.Clone(d.Params)
	return d
}

// Count returns the total number of entries across all collections.
func (s *Snapshot) Count() int {
	return len(s.keywords) + len(s.constants) + len(s.variables) + len(s.decls)
}

// DeclarationsBySource groups declaration counts by source.
func (s *Snapshot) DeclarationsBySource() map[string]int {
	out := make(map[string]int)
	for _, d := range s.decls {
		out[d.Source]++
	}
	return out
}

// record is the JSONL line format of the index dump.
type record struct {
	Kind      Kind     `json:"kind"`
	Name      string   `json:"name"`
	Signature string   `json:"signature,omitempty"`
	Params    []string `json:"params,omitempty"`
	Doc       string   `json:"doc,omitempty"`
	Source    string   `json:"source,omitempty"`
	Line      *int     `json:"line,omitempty"`
}

// WriteJSONL writes keywords, declarations, constants and variables, in that
// order, one JSON object per line. Equal snapshots produce equal bytes.
func (s *Snapshot) WriteJSONL(w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, e := range s.keywords {
		if err := enc.Encode(record{Kind: KindKeyword, Name: e.Name, Doc: e.Doc}); err != nil {
			return fmt.Errorf("encoding keyword %q: %w", e.Name, err)
		}
	}
	for _, d := range s.decls {
		line := d.Line
		rec := record{
			Kind:      KindMethod,
			Name:      d.Name,
			Signature: d.Signature,
			Params:    d.Params,
			Doc:       d.Doc,
			Source:    d.Source,
			Line:      &line,
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encoding declaration %q: %w", d.Name, err)
		}
	}
	for _, e := range s.constants {
		if err := enc.Encode(record{Kind: KindConstant, Name: e.Name, Doc: e.Doc}); err != nil {
			return fmt.Errorf("encoding constant %q: %w", e.Name, err)
		}
	}
	for _, e := range s.variables {
		if err := enc.Encode(record{Kind: KindVariable, Name: e.Name, Doc: e.Doc}); err != nil {
			return fmt.Errorf("encoding variable %q: %w", e.Name, err)
		}
	}
	return nil
}

// WriteJSONLFile writes the dump to path.
func (s *Snapshot) WriteJSONLFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	if err := s.WriteJSONL(bw); err != nil {
		return err
	}
	return bw.Flush()
}

// Fingerprint is the xxhash of the JSONL dump.
func (s *Snapshot) Fingerprint() uint64 {
	h := xxhash.New()
	if err := s.WriteJSONL(h); err != nil {
		return 0
	}
	return h.Sum64()
}

// ReadJSONL rebuilds a snapshot from a dump produced by WriteJSONL.
func ReadJSONL(r io.Reader, meta Meta) (*Snapshot, error) {
	b := NewBuilder()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("decoding index record: %w", err)
		}
		switch rec.Kind {
		case KindMethod:
			d := Declaration{
				Name:      rec.Name,
				Signature: rec.Signature,
				Params:    rec.Params,
				Doc:       rec.Doc,
				Source:    rec.Source,
				Line:      UnknownLine,
			}
			if rec.Line != nil {
				d.Line = *rec.Line
			}
			b.AddDeclarations(d)
		case KindKeyword, KindConstant, KindVariable:
			b.AddEntries(rec.Kind, Entry{Name: rec.Name, Doc: rec.Doc})
		default:
			return nil, fmt.Errorf("unknown index record kind %q", rec.Kind)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return b.Build(meta), nil
}

// ReadJSONLFile loads a dump from path.
func ReadJSONLFile(path string, meta Meta) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return ReadJSONL(f, meta)
}
