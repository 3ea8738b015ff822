package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey_StripPrefix(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"rasters/public_rain.tif", "cogs/rain.tif"},
		{"rasters/cdb_importer_rain.tif", "cogs/rain.tif"},
		{"rasters/PUBLIC_Temp.TIF", "cogs/Temp.TIF"},
		{"rasters/nested/dir/elev.tiff", "cogs/elev.tiff"},
		{"plain.tif", "cogs/plain.tif"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, DeriveKey(tc.source, "cogs/", RuleStripPrefix), tc.source)
	}
}

func TestDeriveKey_COGSuffix(t *testing.T) {
	assert.Equal(t, "cogs/public_rain_cog.tif", DeriveKey("rasters/public_rain.tif", "cogs/", RuleCOGSuffix))
	assert.Equal(t, "cogs/elev_cog.tif", DeriveKey("x/elev.tiff", "cogs/", RuleCOGSuffix))
}

// Differently-prefixed sources with the same stem share one destination key.
// This pins the current behavior; see DESIGN.md.
func TestDeriveKey_PrefixCollision(t *testing.T) {
	d := Deriver{Prefix: "cogs/", Rule: RuleStripPrefix}
	a := d.Key("public_rain.tif")
	b := d.Key("cdb_importer_rain.tif")
	assert.Equal(t, "cogs/rain.tif", a)
	assert.Equal(t, a, b)
	assert.NotEqual(t, d.Key("public_rain.tif"), d.Key("public_temp.tif"))
}

func TestDeriveKey_InjectiveWithinCategory(t *testing.T) {
	keys := []string{"public_a.tif", "public_b.tif", "public_a.tiff", "public_ab.tif", "public_public_a.tif"}
	d := Deriver{Prefix: "cogs/", Rule: RuleStripPrefix}
	seen := map[string]string{}
	for _, k := range keys {
		require.True(t, CategoryPublic.Matches(k))
		dk := d.Key(k)
		prev, dup := seen[dk]
		require.False(t, dup, "%s and %s both map to %s", prev, k, dk)
		seen[dk] = k
	}
}

func TestParseRule(t *testing.T) {
	r, err := ParseRule("")
	require.NoError(t, err)
	assert.Equal(t, RuleStripPrefix, r)

	r, err = ParseRule(" COG-SUFFIX ")
	require.NoError(t, err)
	assert.Equal(t, RuleCOGSuffix, r)

	_, err = ParseRule("basename")
	assert.Error(t, err)
}

func TestHasExtension(t *testing.T) {
	exts := NormalizeExtensions([]string{"TIF", ".tiff", " "})
	assert.Equal(t, []string{".tif", ".tiff"}, exts)

	assert.True(t, HasExtension("a/b.TIF", exts))
	assert.True(t, HasExtension("a/b.tiff", exts))
	assert.False(t, HasExtension("a/b.tif.aux.xml", exts))
	assert.False(t, HasExtension("a/b.png", exts))
}

func TestCategory(t *testing.T) {
	c, err := ParseCategory("")
	require.NoError(t, err)
	assert.Equal(t, CategoryAll, c)
	assert.True(t, c.Matches("x/anything.tif"))

	c, err = ParseCategory("cdb_importer")
	require.NoError(t, err)
	assert.True(t, c.Matches("x/cdb_importer_rain.tif"))
	assert.False(t, c.Matches("x/public_rain.tif"))
	// Prefix must be on the basename, not the directory.
	assert.False(t, c.Matches("cdb_importer_dir/rain.tif"))

	_, err = ParseCategory("carto")
	assert.Error(t, err)
}
