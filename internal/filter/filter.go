// Package filter narrows the set of files to download by name.
package filter

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	sfuzzy "github.com/sahilm/fuzzy"

	"github.com/mmcdole/hoard/internal/domain"
)

// Filter keeps names matching Match and drops names matching Exclude
type Filter struct {
	match   string
	exclude string
}

// New creates a filter. Empty strings disable the corresponding side.
func New(match, exclude string) *Filter {
	return &Filter{
		match:   strings.ToLower(strings.TrimSpace(match)),
		exclude: strings.TrimSpace(exclude),
	}
}

// Active reports whether the filter changes anything
func (f *Filter) Active() bool {
	return f.match != "" || f.exclude != ""
}

// Apply returns the selected files in their original order
func (f *Filter) Apply(files []domain.FileDescriptor) []domain.FileDescriptor {
	if !f.Active() {
		return files
	}

	selected := files
	if f.match != "" {
		selected = f.matching(selected)
	}
	if f.exclude == "" {
		return selected
	}

	out := make([]domain.FileDescriptor, 0, len(selected))
	for _, file := range selected {
		if !fuzzy.MatchNormalizedFold(f.exclude, file.Name) {
			out = append(out, file)
		}
	}
	return out
}

// nameIndex implements sahilm/fuzzy.Source over lowercase file names
type nameIndex struct {
	lower []string
}

func (idx *nameIndex) String(i int) string { return idx.lower[i] }
func (idx *nameIndex) Len() int            { return len(idx.lower) }

func (f *Filter) matching(files []domain.FileDescriptor) []domain.FileDescriptor {
	idx := &nameIndex{lower: make([]string, len(files))}
	for i, file := range files {
		idx.lower[i] = strings.ToLower(file.Name)
	}

	matches := sfuzzy.FindFrom(f.match, idx)
	keep := make([]int, 0, len(matches))
	for _, m := range matches {
		keep = append(keep, m.Index)
	}
	sort.Ints(keep)

	out := make([]domain.FileDescriptor, 0, len(keep))
	for _, i := range keep {
		out = append(out, files[i])
	}
	return out
}
