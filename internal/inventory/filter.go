package inventory

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/fpang/raster-cog-converter/internal/config"
	"github.com/fpang/raster-cog-converter/internal/naming"
)

// Filter selects which listed objects count as source rasters.
type Filter struct {
	// Extensions is the lower-case allow-list; empty means naming.DefaultExtensions.
	Extensions []string
	// Pattern, when set, must match the key's basename.
	Pattern *regexp.Regexp
	// Category restricts basenames to one naming convention.
	Category naming.Category
	// Exclude drops keys under this prefix (a destination nested in the source tree).
	Exclude string
}

// Match reports whether key passes every configured condition.
func (f Filter) Match(key string) bool {
	exts := f.Extensions
	if len(exts) == 0 {
		exts = naming.DefaultExtensions
	}
	if !naming.HasExtension(key, exts) {
		return false
	}
	if f.Exclude != "" && strings.HasPrefix(key, f.Exclude) {
		return false
	}
	if f.Pattern != nil && !f.Pattern.MatchString(path.Base(key)) {
		return false
	}
	return f.Category.Matches(key)
}

// FilterFromSettings builds the source filter. A destination nested under
// the source prefix is excluded so converted output is never re-listed as
// source.
func FilterFromSettings(s *config.Settings) (Filter, error) {
	pattern, err := s.SourcePattern()
	if err != nil {
		return Filter{}, fmt.Errorf("%w: FILENAME_FILTER: %v", config.ErrInvalidSetting, err)
	}
	f := Filter{Extensions: s.Extensions, Pattern: pattern, Category: s.Category}
	if s.COGPrefix != s.SourcePrefix && strings.HasPrefix(s.COGPrefix, s.SourcePrefix) {
		f.Exclude = s.COGPrefix
	}
	return f, nil
}
