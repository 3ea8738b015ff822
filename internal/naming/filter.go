package naming

import (
	"fmt"
	"path"
	"strings"
)

// DefaultExtensions is the raster extension allow-list.
var DefaultExtensions = []string{".tif", ".tiff"}

// NormalizeExtensions lower-cases each extension and ensures a leading dot.
// Empty entries are dropped.
func NormalizeExtensions(exts []string) []string {
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

// HasExtension reports whether key ends in one of exts, ignoring case.
// exts must already be normalized.
func HasExtension(key string, exts []string) bool {
	lower := strings.ToLower(key)
	for _, e := range exts {
		if strings.HasSuffix(lower, e) {
			return true
		}
	}
	return false
}

// Category restricts listings to one filename naming convention.
type Category string

const (
	CategoryAll         Category = "all"
	CategoryPublic      Category = "public"
	CategoryCDBImporter Category = "cdb_importer"
)

var categoryPrefixes = map[Category]string{
	CategoryPublic:      "public_",
	CategoryCDBImporter: "cdb_importer_",
}

// ParseCategory validates a category selector. Empty selects CategoryAll.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c == "" || c == CategoryAll {
		return CategoryAll, nil
	}
	if _, ok := categoryPrefixes[c]; ok {
		return c, nil
	}
	return "", fmt.Errorf("unknown category %q (want all, public or cdb_importer)", s)
}

// Matches reports whether the basename of key belongs to the category.
func (c Category) Matches(key string) bool {
	p, ok := categoryPrefixes[c]
	if !ok {
		return true
	}
	return strings.HasPrefix(strings.ToLower(path.Base(key)), p)
}
