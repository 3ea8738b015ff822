// Package naming holds the rules that map a source raster key to the key its
// cloud-optimized counterpart must occupy, plus the filename filters shared by
// the reconciler and the worker.
//
// The derived key is the only link between a source object and its converted
// output. Resumption after a crash depends on it being deterministic: the
// reconciler and every worker must compute the same key for the same input.
package naming

import (
	"fmt"
	"path"
	"strings"
)

// Rule selects how a derived key is built from a source key.
type Rule string

const (
	// RuleStripPrefix drops a known table/schema prefix from the basename and
	// keeps the rest of the filename unchanged.
	RuleStripPrefix Rule = "strip-prefix"

	// RuleCOGSuffix keeps the full stem and appends "_cog.tif".
	RuleCOGSuffix Rule = "cog-suffix"
)

// DefaultRule is used when no rule is configured.
const DefaultRule = RuleStripPrefix

// ParseRule validates a configured rule name. Empty selects DefaultRule.
func ParseRule(s string) (Rule, error) {
	switch Rule(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultRule, nil
	case RuleStripPrefix:
		return RuleStripPrefix, nil
	case RuleCOGSuffix:
		return RuleCOGSuffix, nil
	}
	return "", fmt.Errorf("unknown naming rule %q (want %s or %s)", s, RuleStripPrefix, RuleCOGSuffix)
}

// knownTablePrefixes are the naming artifacts CARTO exports put in front of a
// raster's table name. Longest first so "cdb_importer_" is never shadowed.
var knownTablePrefixes = []string{"cdb_importer_", "public_"}

// StripTablePrefix removes one known table/schema prefix from a basename.
//
// Two sources that differ only by prefix ("public_rain.tif" and
// "cdb_importer_rain.tif") collapse to the same name. Under CategoryAll that
// is a collision on the destination key and the last writer wins.
func StripTablePrefix(base string) string {
	lower := strings.ToLower(base)
	for _, p := range knownTablePrefixes {
		if strings.HasPrefix(lower, p) && len(base) > len(p) {
			return base[len(p):]
		}
	}
	return base
}

// Deriver computes derived keys under a fixed destination prefix.
type Deriver struct {
	Prefix string
	Rule   Rule
}

// Key returns the derived key for sourceKey.
func (d Deriver) Key(sourceKey string) string {
	return DeriveKey(sourceKey, d.Prefix, d.Rule)
}

// DeriveKey maps a source object key to the key its converted counterpart
// must occupy under destPrefix. It is a pure function of its inputs.
func DeriveKey(sourceKey, destPrefix string, rule Rule) string {
	base := path.Base(sourceKey)
	switch rule {
	case RuleCOGSuffix:
		stem := strings.TrimSuffix(base, path.Ext(base))
		return destPrefix + stem + "_cog.tif"
	default:
		return destPrefix + StripTablePrefix(base)
	}
}
