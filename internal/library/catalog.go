// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package library

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/ManuGH/seedlink/internal/linksign"
	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Group is one author, show or artist and its entries in display order.
type Group struct {
	Key     string  `json:"key"`
	Entries []Entry `json:"entries"`
}

// Catalog is an immutable snapshot of one category. All methods are safe
// for concurrent use.
type Catalog struct {
	category Category
	builtAt  time.Time
	groups   []Group
	folded   []string // folded group keys, parallel to groups
	index    map[string]int
	entries  int
	skipped  []Skip
}

// fold is the case-insensitive comparison key: Unicode case folding followed
// by NFC so composed and decomposed spellings compare equal.
func fold(s string) string {
	return norm.NFC.String(cases.Fold().String(s))
}

// NewCatalog groups entries case-insensitively. The stored group key keeps
// the casing of the first entry seen for it; entries are rewritten to carry
// that key.
func NewCatalog(cat Category, entries []Entry, skipped []Skip, builtAt time.Time) *Catalog {
	type keyed struct {
		Entry
		foldedTitle string
	}
	type building struct {
		key     string
		folded  string
		entries []keyed
	}

	var groups []*building
	byKey := make(map[string]*building)
	for _, e := range entries {
		k := fold(e.Group)
		g, ok := byKey[k]
		if !ok {
			g = &building{key: e.Group, folded: k}
			byKey[k] = g
			groups = append(groups, g)
		}
		e.Group = g.key
		g.entries = append(g.entries, keyed{Entry: e, foldedTitle: fold(e.Title)})
	}

	// Folded keys are ordered by the root collation so accented names sort
	// with their base letter; byte order breaks collation ties.
	col := collate.New(language.Und)
	slices.SortStableFunc(groups, func(a, b *building) int {
		return cmp.Or(
			col.CompareString(a.folded, b.folded),
			cmp.Compare(a.folded, b.folded),
			cmp.Compare(a.key, b.key),
		)
	})

	c := &Catalog{
		category: cat,
		builtAt:  builtAt,
		groups:   make([]Group, len(groups)),
		folded:   make([]string, len(groups)),
		index:    make(map[string]int, len(groups)),
		entries:  len(entries),
		skipped:  slices.Clone(skipped),
	}
	for i, g := range groups {
		slices.SortStableFunc(g.entries, func(a, b keyed) int {
			return cmp.Or(
				col.CompareString(a.foldedTitle, b.foldedTitle),
				cmp.Compare(a.foldedTitle, b.foldedTitle),
				cmp.Compare(a.Title, b.Title),
				cmp.Compare(a.RemotePath, b.RemotePath),
			)
		})
		out := make([]Entry, len(g.entries))
		for j, e := range g.entries {
			out[j] = e.Entry
		}
		c.groups[i] = Group{Key: g.key, Entries: out}
		c.folded[i] = g.folded
		c.index[g.folded] = i
	}
	return c
}

// Category returns the category the catalog was built for.
func (c *Catalog) Category() Category { return c.category }

// BuiltAt returns when the rebuild that produced c finished.
func (c *Catalog) BuiltAt() time.Time { return c.builtAt }

// Len returns the number of entries.
func (c *Catalog) Len() int { return c.entries }

// Skipped returns the listing entries the normalizer could not place.
func (c *Catalog) Skipped() []Skip { return slices.Clone(c.skipped) }

// Groups returns the group keys in display order.
func (c *Catalog) Groups() []string {
	out := make([]string, len(c.groups))
	for i, g := range c.groups {
		out[i] = g.Key
	}
	return out
}

// Group returns one group by case-insensitive key.
func (c *Catalog) Group(key string) (Group, bool) {
	i, ok := c.index[fold(strings.TrimSpace(key))]
	if !ok {
		return Group{}, false
	}
	g := c.groups[i]
	return Group{Key: g.Key, Entries: slices.Clone(g.Entries)}, true
}

// Entries returns the entries of every group whose key contains query,
// case-insensitively, in display order. An empty query matches all groups.
func (c *Catalog) Entries(query string) []Entry {
	q := fold(strings.TrimSpace(query))
	var out []Entry
	for i, g := range c.groups {
		if q == "" || strings.Contains(c.folded[i], q) {
			out = append(out, g.Entries...)
		}
	}
	return out
}

// FindAll returns every entry with the given group and title, compared
// case-insensitively. Multi-format editions yield several entries.
func (c *Catalog) FindAll(group, title string) []Entry {
	i, ok := c.index[fold(strings.TrimSpace(group))]
	if !ok {
		return nil
	}
	t := fold(strings.TrimSpace(title))
	var out []Entry
	for _, e := range c.groups[i].Entries {
		if fold(e.Title) == t {
			out = append(out, e)
		}
	}
	return out
}

// Find returns the first entry for group and title in display order.
func (c *Catalog) Find(group, title string) (Entry, bool) {
	all := c.FindAll(group, title)
	if len(all) == 0 {
		return Entry{}, false
	}
	return all[0], true
}

// Preferred picks one entry for group and title by extension preference.
// Extensions missing from preference rank last; ties keep display order.
func (c *Catalog) Preferred(group, title string, preference []string) (Entry, bool) {
	all := c.FindAll(group, title)
	if len(all) == 0 {
		return Entry{}, false
	}
	rank := func(ext string) int {
		for i, p := range preference {
			if strings.EqualFold(strings.TrimSpace(p), ext) {
				return i
			}
		}
		return len(preference)
	}
	best := all[0]
	for _, e := range all[1:] {
		if rank(e.Extension) < rank(best.Extension) {
			best = e
		}
	}
	return best, true
}

// Lookup resolves a token reference. Group matching is case-insensitive;
// title and path must match exactly.
func (c *Catalog) Lookup(ref linksign.EntryRef) (Entry, bool) {
	if ref.Category != string(c.category) {
		return Entry{}, false
	}
	i, ok := c.index[fold(ref.Group)]
	if !ok {
		return Entry{}, false
	}
	for _, e := range c.groups[i].Entries {
		if e.Title == ref.Title && e.RemotePath == ref.Path {
			return e, true
		}
	}
	return Entry{}, false
}
