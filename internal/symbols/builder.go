package symbols

import "strconv"

// Builder accumulates one generation of the index. It is not safe for
// concurrent use; callers fold extraction results into it in order.
type Builder struct {
	keywords   []Entry
	constants  []Entry
	variables  []Entry
	decls      []Declaration
	byKey      map[string]int
	duplicates []Duplicate
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{byKey: make(map[string]int)}
}

// AddDeclarations appends declarations whose key is not yet present.
// Later declarations with a taken key are recorded as duplicates.
// It returns the number of declarations added.
func (b *Builder) AddDeclarations(dd ...Declaration) int {
	added := 0
	for _, d := range dd {
		if d.NameKey == "" {
			d.NameKey = Key(d.Name)
		}
		if d.NameKey == "" {
			continue
		}
		if d.Params == nil {
			d.Params = []string{}
		}
		if idx, ok := b.byKey[d.NameKey]; ok {
			b.duplicates = append(b.duplicates, Duplicate{
				Key:       d.NameKey,
				Kept:      b.decls[idx],
				Discarded: d,
			})
			continue
		}
		b.byKey[d.NameKey] = len(b.decls)
		b.decls = append(b.decls, d)
		added++
	}
	return added
}

// AddEntries appends entries to the collection of the given kind.
// Entries with another kind or an empty name are ignored.
func (b *Builder) AddEntries(kind Kind, ee ...Entry) {
	for _, e := range ee {
		if e.Name == "" {
			continue
		}
		e.Kind = kind
		switch kind {
		case KindKeyword:
			b.keywords = append(b.keywords, e)
		case KindConstant:
			b.constants = append(b.constants, e)
		case KindVariable:
			b.variables = append(b.variables, e)
		}
	}
}

// Duplicates returns the declarations discarded so far.
func (b *Builder) Duplicates() []Duplicate {
	return b.duplicates
}

// Build freezes the accumulated entries into a Snapshot. The builder must
// not be used afterwards.
func (b *Builder) Build(meta Meta) *Snapshot {
	s := &Snapshot{
		Meta:      meta,
		keywords:  b.keywords,
		constants: b.constants,
		variables: b.variables,
		decls:     b.decls,
		byKey:     b.byKey,
		byName:    make(map[string]int, len(b.decls)),
	}
	for i, d := range b.decls {
		if _, ok := s.byName[d.Name]; !ok {
			s.byName[d.Name] = i
		}
	}
	if s.Meta.Duplicates == nil {
		s.Meta.Duplicates = b.duplicates
	}
	s.Meta.Fingerprint = strconv.FormatUint(s.Fingerprint(), 16)
	return s
}
