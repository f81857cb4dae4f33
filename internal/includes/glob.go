package includes

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// HasMeta reports whether pattern contains glob metacharacters.
func HasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// Glob resolves pattern, a slash-separated path relative to base, matching
// every segment case-insensitively. Only regular files are returned, sorted.
// A pattern without metacharacters resolves to at most one file, preferring
// an exact-case match.
func Glob(base, pattern string) []string {
	segs := strings.Split(path.Clean(pattern), "/")
	cur := []string{base}

	for i, seg := range segs {
		last := i == len(segs)-1
		var next []string
		for _, dir := range cur {
			switch {
			case seg == "" || seg == ".":
				next = append(next, dir)
			case seg == "..":
				next = append(next, filepath.Dir(dir))
			case seg == "**":
				next = append(next, subdirs(dir)...)
			case !HasMeta(seg):
				if p, ok := lookupFold(dir, seg); ok {
					next = append(next, p)
				}
			default:
				entries, err := os.ReadDir(dir)
				if err != nil {
					continue
				}
				lower := strings.ToLower(seg)
				for _, e := range entries {
					if ok, _ := doublestar.Match(lower, strings.ToLower(e.Name())); ok {
						next = append(next, filepath.Join(dir, e.Name()))
					}
				}
			}
		}
		cur = dedupe(next)
		if last {
			break
		}
		if len(cur) == 0 {
			return nil
		}
	}

	files := cur[:0]
	for _, p := range cur {
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			files = append(files, p)
		}
	}
	sort.Strings(files)
	return files
}

// lookupFold finds name in dir, exact case first, then ignoring case.
func lookupFold(dir, name string) (string, bool) {
	exact := filepath.Join(dir, name)
	if _, err := os.Lstat(exact); err == nil {
		return exact, true
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if strings.EqualFold(e.Name(), name) {
			return filepath.Join(dir, e.Name()), true
		}
	}
	return "", false
}

// subdirs returns dir and every directory below it.
func subdirs(dir string) []string {
	var out []string
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			out = append(out, p)
		}
		return nil
	})
	return out
}

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := paths[:0]
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
