package source

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/mmcdole/hoard/internal/domain"
)

// Variant selects how listing pages are interpreted
type Variant string

const (
	// VariantLegacy takes files embedded in each listed post
	VariantLegacy Variant = "legacy"
	// VariantDetail takes bare post ids and resolves them one by one
	VariantDetail Variant = "detail"
)

// ParseVariant validates a variant name. Empty means legacy.
func ParseVariant(s string) (Variant, bool) {
	switch Variant(strings.ToLower(strings.TrimSpace(s))) {
	case "", VariantLegacy:
		return VariantLegacy, true
	case VariantDetail:
		return VariantDetail, true
	default:
		return "", false
	}
}

// postID accepts both "123" and 123
type postID string

func (p *postID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = postID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = postID(n.String())
	return nil
}

// fileDTO is a file object as served by the API
type fileDTO struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Server string `json:"server"`
}

// postDTO is one entry of a listing page or the post of a detail response
type postDTO struct {
	ID          postID    `json:"id"`
	File        *fileDTO  `json:"file"`
	Attachments []fileDTO `json:"attachments"`
}

// listingPage is the posts-legacy response
type listingPage struct {
	Props *struct {
		Count *int `json:"count"`
	} `json:"props"`
	Results []postDTO `json:"results"`
}

// detailResponse is the post/{id} response
type detailResponse struct {
	Post        *postDTO  `json:"post"`
	Attachments []fileDTO `json:"attachments"`
}

// total returns the reported item count, if any
func (p *listingPage) total() (int, bool) {
	if p.Props == nil || p.Props.Count == nil {
		return 0, false
	}
	return *p.Props.Count, true
}

// entries converts a page into canonical listing entries for a variant
func (p *listingPage) entries(v Variant) []domain.ListingEntry {
	var out []domain.ListingEntry
	for _, post := range p.Results {
		if v == VariantDetail {
			if post.ID != "" {
				out = append(out, domain.ListingEntry{Kind: domain.EntryPost, PostID: string(post.ID)})
			}
			continue
		}
		for _, f := range post.files(string(post.ID)) {
			out = append(out, domain.ListingEntry{Kind: domain.EntryFile, File: f})
		}
	}
	return out
}

// files flattens the primary file and the attachments of a post. The same
// asset is often listed as both; it is kept once so two tasks never write the
// same destination.
func (p *postDTO) files(id string) []domain.FileDescriptor {
	var c fileCollector
	if p.File != nil {
		c.add(*p.File, id)
	}
	for _, a := range p.Attachments {
		c.add(a, id)
	}
	return c.out
}

// files resolves a detail response, preferring the top-level attachments
func (r *detailResponse) files(id string) []domain.FileDescriptor {
	var c fileCollector
	if r.Post != nil && r.Post.File != nil {
		c.add(*r.Post.File, id)
	}

	attachments := r.Attachments
	if len(attachments) == 0 && r.Post != nil {
		attachments = r.Post.Attachments
	}
	for _, a := range attachments {
		c.add(a, id)
	}
	return c.out
}

type fileCollector struct {
	seen map[[2]string]bool
	out  []domain.FileDescriptor
}

func (c *fileCollector) add(f fileDTO, id string) {
	d, ok := f.toDomain(id)
	if !ok {
		return
	}
	key := [2]string{d.Path, d.Name}
	if c.seen[key] {
		return
	}
	if c.seen == nil {
		c.seen = make(map[[2]string]bool)
	}
	c.seen[key] = true
	c.out = append(c.out, d)
}

// toDomain maps a file object; posts without a file serve {} which is skipped
func (f fileDTO) toDomain(id string) (domain.FileDescriptor, bool) {
	if f.Path == "" || f.Name == "" {
		return domain.FileDescriptor{}, false
	}
	return domain.FileDescriptor{
		Name:   f.Name,
		Path:   f.Path,
		Server: f.Server,
		PostID: id,
	}, true
}
