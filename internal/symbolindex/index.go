// Package symbolindex holds an immutable, in-memory table of documented
// symbols and answers prefix and substring queries over their names.
//
// An Index is built once from an ordered list of records and never mutated
// afterwards, so any number of goroutines may query it without locking.
// Replacing the active index at runtime goes through Holder.
package symbolindex

import (
	"cmp"
	"iter"
	"net/http"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/errors"
)

// Index is the immutable symbol table.
type Index struct {
	// entries is in rank order: shorter keys first, then lexicographic.
	entries []Entry
	// byKey maps a key to its position in entries.
	byKey map[string]int
	// lexical holds positions into entries ordered lexicographically by key,
	// so a prefix maps to one contiguous run.
	lexical []int
	targets int
}

// Build validates records and builds an Index from them. Records whose
// display names normalize to the same key are merged: the first display name
// wins and targets are concatenated in input order. Any invalid record fails
// the whole build with ErrMalformedEntry and no index is returned.
func Build(records []Record) (*Index, error) {
	byKey := make(map[string]int, len(records))
	entries := make([]Entry, 0, len(records))
	targets := 0

	for i, rec := range records {
		if err := validate(i, rec); err != nil {
			return nil, err
		}
		key := Normalize(rec.DisplayName)
		if key == "" {
			return nil, malformed(i, "display name %q normalizes to an empty key", rec.DisplayName)
		}
		if pos, ok := byKey[key]; ok {
			entries[pos].Targets = append(entries[pos].Targets, rec.Targets...)
		} else {
			byKey[key] = len(entries)
			entries = append(entries, Entry{
				Key:         key,
				DisplayName: rec.DisplayName,
				Targets:     slices.Clone(rec.Targets),
			})
		}
		targets += len(rec.Targets)
	}

	slices.SortFunc(entries, compareRank)
	lexical := make([]int, len(entries))
	for pos, e := range entries {
		byKey[e.Key] = pos
		lexical[pos] = pos
	}
	slices.SortFunc(lexical, func(a, b int) int {
		return strings.Compare(entries[a].Key, entries[b].Key)
	})

	return &Index{
		entries: entries,
		byKey:   byKey,
		lexical: lexical,
		targets: targets,
	}, nil
}

func validate(i int, rec Record) error {
	if rec.DisplayName == "" {
		return malformed(i, "empty display name")
	}
	if len(rec.Targets) == 0 {
		return malformed(i, "symbol %q has no targets", rec.DisplayName)
	}
	for j, t := range rec.Targets {
		if t.Reference == "" {
			return malformed(i, "symbol %q target %d has an empty reference", rec.DisplayName, j)
		}
	}
	return nil
}

func malformed(i int, format string, args ...any) error {
	return apperrors.Newf(apperrors.ErrMalformedEntry, http.StatusUnprocessableEntity,
		"record %d: "+format, append([]any{i}, args...)...)
}

// compareRank orders by key length in characters, then by key.
func compareRank(a, b Entry) int {
	if c := cmp.Compare(utf8.RuneCountInString(a.Key), utf8.RuneCountInString(b.Key)); c != 0 {
		return c
	}
	return strings.Compare(a.Key, b.Key)
}

// Query returns the entries whose key starts with the normalized prefix. An
// exact match comes first, then shorter keys before longer ones, then
// lexicographic order. An empty prefix yields the whole index in that order.
//
// The sequence is evaluated lazily and may be ranged over any number of
// times.
func (idx *Index) Query(prefix string) iter.Seq[Entry] {
	p := Normalize(prefix)
	return func(yield func(Entry) bool) {
		if p == "" {
			idx.yieldAll(yield)
			return
		}
		// Keys are unique and an exact match is the shortest possible prefix
		// match, so rank order already puts it first.
		for _, pos := range idx.prefixRun(p) {
			if !yield(idx.entries[pos].clone()) {
				return
			}
		}
	}
}

// SubstringSearch returns the entries whose key contains the normalized
// needle. Entries where the needle is a prefix come first; within each group
// the order matches Query. No match yields an empty sequence.
func (idx *Index) SubstringSearch(needle string) iter.Seq[Entry] {
	n := Normalize(needle)
	return func(yield func(Entry) bool) {
		if n == "" {
			idx.yieldAll(yield)
			return
		}
		for _, pos := range idx.prefixRun(n) {
			if !yield(idx.entries[pos].clone()) {
				return
			}
		}
		for _, e := range idx.entries {
			if strings.HasPrefix(e.Key, n) || !strings.Contains(e.Key, n) {
				continue
			}
			if !yield(e.clone()) {
				return
			}
		}
	}
}

// All yields every entry in rank order. It is equivalent to Query("").
func (idx *Index) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		idx.yieldAll(yield)
	}
}

// Get returns the entry whose key equals the normalized name.
func (idx *Index) Get(name string) (Entry, bool) {
	pos, ok := idx.byKey[Normalize(name)]
	if !ok {
		return Entry{}, false
	}
	return idx.entries[pos].clone(), true
}

// Len returns the number of distinct entries.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// TargetCount returns the number of targets across all entries.
func (idx *Index) TargetCount() int {
	return idx.targets
}

// Records converts the index back into records, one per entry, in rank
// order. Building from the result reproduces an equivalent index.
func (idx *Index) Records() []Record {
	records := make([]Record, 0, len(idx.entries))
	for _, e := range idx.entries {
		records = append(records, Record{
			DisplayName: e.DisplayName,
			Targets:     slices.Clone(e.Targets),
		})
	}
	return records
}

func (idx *Index) yieldAll(yield func(Entry) bool) {
	for _, e := range idx.entries {
		if !yield(e.clone()) {
			return
		}
	}
}

// prefixRun returns the rank-ordered positions of all entries whose key
// starts with p.
func (idx *Index) prefixRun(p string) []int {
	lo := sort.Search(len(idx.lexical), func(i int) bool {
		return idx.entries[idx.lexical[i]].Key >= p
	})
	hi := lo
	for hi < len(idx.lexical) && strings.HasPrefix(idx.entries[idx.lexical[hi]].Key, p) {
		hi++
	}
	if lo == hi {
		return nil
	}
	run := slices.Clone(idx.lexical[lo:hi])
	slices.Sort(run)
	return run
}
