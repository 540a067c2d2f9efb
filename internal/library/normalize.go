// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package library

import (
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/ManuGH/seedlink/internal/remote"
)

// Listing is a recursive listing of a category root. Paths are relative to
// the root and slash separated.
type Listing []remote.Entry

// Skip records a top-level listing entry that produced no catalog entry.
type Skip struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Result is the output of Normalize.
type Result struct {
	Entries []Entry
	Skipped []Skip
}

// Skip reasons.
const (
	SkipHidden    = "hidden"
	SkipExtension = "extension not accepted"
	SkipName      = `file name is not "Author - Title"`
	SkipEmpty     = "no matching files"
	SkipTitle     = "empty title"
)

const authorTitleSep = " - "

// topDir collects the matching files under one top-level directory.
type topDir struct {
	name    string
	direct  []remote.Entry
	nested  map[string][]remote.Entry
	subDirs []string
}

// item is one top-level listing element in first-seen order.
type item struct {
	dir  *topDir
	file *remote.Entry
}

// Normalize maps a raw listing onto catalog entries. Three layouts are
// recognized per top-level entry:
//
//	Author/Title/any/depth/file.ext  nested: one entry per file, title = "Title"
//	Author/file.ext                  flat per author: title = "file"
//	Author - Title.ext               flat at root: split on the first " - "
//
// A directory may hold both nested and flat files; both are indexed.
// Everything else is returned in Result.Skipped. Normalize performs no I/O.
func Normalize(listing Listing, root string, exts []string, cat Category) Result {
	exts = normalizeExts(exts)

	var (
		res   Result
		items []item
		dirs  = make(map[string]*topDir)
		hide  = make(map[string]bool)
	)

	dirFor := func(name string) *topDir {
		if d, ok := dirs[name]; ok {
			return d
		}
		d := &topDir{name: name, nested: make(map[string][]remote.Entry)}
		dirs[name] = d
		items = append(items, item{dir: d})
		return d
	}

	for _, e := range sortedListing(listing) {
		parts := strings.Split(e.Path, "/")
		top := parts[0]

		if isHidden(top) {
			if !hide[top] {
				hide[top] = true
				res.Skipped = append(res.Skipped, Skip{Path: top, Reason: SkipHidden})
			}
			continue
		}

		if len(parts) == 1 {
			if e.IsDir {
				dirFor(top)
				continue
			}
			f := e
			items = append(items, item{file: &f})
			continue
		}

		d := dirFor(top)
		if e.IsDir || hiddenBelow(parts[1:]) {
			continue
		}
		if _, ok := matchExt(parts[len(parts)-1], exts); !ok {
			continue
		}
		if len(parts) == 2 {
			d.direct = append(d.direct, e)
			continue
		}
		sub := parts[1]
		if _, seen := d.nested[sub]; !seen {
			d.subDirs = append(d.subDirs, sub)
		}
		d.nested[sub] = append(d.nested[sub], e)
	}

	for _, it := range items {
		if it.file != nil {
			entry, reason := rootFile(*it.file, root, exts, cat)
			if reason != "" {
				res.Skipped = append(res.Skipped, Skip{Path: it.file.Path, Reason: reason})
				continue
			}
			res.Entries = append(res.Entries, entry)
			continue
		}

		d := it.dir
		group := strings.TrimSpace(d.name)
		before := len(res.Entries)

		for _, sub := range d.subDirs {
			title := strings.TrimSpace(sub)
			if title == "" {
				continue
			}
			for _, f := range d.nested[sub] {
				ext, _ := matchExt(path.Base(f.Path), exts)
				res.Entries = append(res.Entries, newEntry(cat, group, title, root, f, ext))
			}
		}
		for _, f := range d.direct {
			name := path.Base(f.Path)
			ext, _ := matchExt(name, exts)
			title := strings.TrimSpace(name[:len(name)-len(ext)])
			if title == "" {
				res.Skipped = append(res.Skipped, Skip{Path: f.Path, Reason: SkipTitle})
				continue
			}
			res.Entries = append(res.Entries, newEntry(cat, group, title, root, f, ext))
		}

		if group == "" || len(res.Entries) == before {
			res.Entries = res.Entries[:before]
			res.Skipped = append(res.Skipped, Skip{Path: d.name, Reason: SkipEmpty})
		}
	}

	return res
}

func rootFile(f remote.Entry, root string, exts []string, cat Category) (Entry, string) {
	ext, ok := matchExt(f.Path, exts)
	if !ok {
		return Entry{}, SkipExtension
	}
	base := f.Path[:len(f.Path)-len(ext)]
	i := strings.Index(base, authorTitleSep)
	if i < 0 {
		return Entry{}, SkipName
	}
	author := strings.TrimSpace(base[:i])
	title := strings.TrimSpace(base[i+len(authorTitleSep):])
	if author == "" || title == "" {
		return Entry{}, SkipName
	}
	return newEntry(cat, author, title, root, f, ext), ""
}

func newEntry(cat Category, group, title, root string, f remote.Entry, ext string) Entry {
	return Entry{
		Category:   cat,
		Group:      group,
		Title:      title,
		RemotePath: joinRoot(root, f.Path),
		SizeBytes:  f.Size,
		Extension:  ext,
	}
}

func joinRoot(root, rel string) string {
	if root == "" {
		return rel
	}
	return path.Join(root, rel)
}

// sortedListing cleans paths and orders the listing so that "first
// occurrence" is independent of the order the remote returned entries in.
func sortedListing(listing Listing) Listing {
	out := make(Listing, 0, len(listing))
	for _, e := range listing {
		p := strings.TrimPrefix(path.Clean("/"+e.Path), "/")
		if p == "" {
			continue
		}
		e.Path = p
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func normalizeExts(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

// matchExt returns the longest accepted extension name ends with, lowercased.
func matchExt(name string, exts []string) (string, bool) {
	lower := strings.ToLower(name)
	best := ""
	for _, e := range exts {
		if len(e) > len(best) && len(lower) > len(e) && strings.HasSuffix(lower, e) {
			best = e
		}
	}
	return best, best != ""
}

var releaseTag = regexp.MustCompile(`[\[{(][^\]})]*[\]})]`)

// CleanTitle drops release tags such as "[EPUB]", "{AZW3}" or "(1979)" and
// turns underscores into spaces. A title that would come out empty is
// returned trimmed but otherwise unchanged.
func CleanTitle(title string) string {
	t := releaseTag.ReplaceAllString(title, "")
	t = strings.ReplaceAll(t, "_", " ")
	t = strings.Join(strings.Fields(t), " ")
	if t == "" {
		return strings.TrimSpace(title)
	}
	return t
}

func isHidden(name string) bool { return strings.HasPrefix(name, ".") }

func hiddenBelow(parts []string) bool {
	for _, p := range parts {
		if isHidden(p) {
			return true
		}
	}
	return false
}
