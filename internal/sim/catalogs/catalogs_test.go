package catalogs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults_PaletteStartsWithAir(t *testing.T) {
	c := Defaults()
	require.Equal(t, "AIR", c.Blocks.Palette[0])
	require.Equal(t, uint16(0), c.Blocks.Index["AIR"])
	require.Len(t, c.Blocks.Palette, len(c.Blocks.Defs))

	id, ok := c.Blocks.ByKind(KindFusionRouter)
	require.True(t, ok)
	def, ok := c.Blocks.Lookup(id)
	require.True(t, ok)
	require.False(t, def.HasItems, "routers are never dispatch targets")

	mag, ok := c.Blocks.ByKind(KindMagnet)
	require.True(t, ok)
	require.True(t, c.Blocks.Defs[mag].Magnet)
	require.True(t, c.Blocks.Defs[mag].HasItems)
}

func TestLoad_MatchesDefaultsDigest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blocks.json"), defaultBlocks, 0o644))
	c, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, Defaults().Blocks.PaletteDigest, c.Blocks.PaletteDigest)
	require.Equal(t, Defaults().Blocks.DefsDigest, c.Blocks.DefsDigest)
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"no air":       `[{"id":"WALL","kind":"WALL"}]`,
		"unknown kind": `[{"id":"AIR","kind":"AIR"},{"id":"X","kind":"TELEPORTER"}]`,
		"empty id":     `[{"id":"AIR","kind":"AIR"},{"kind":"WALL"}]`,
		"negative":     `[{"id":"AIR","kind":"AIR"},{"id":"C","kind":"CONTAINER","capacity":-1}]`,
		"not json":     `{`,
	}
	for name, body := range cases {
		_, err := parse([]byte(body))
		require.Error(t, err, name)
	}

	_, err := Load(t.TempDir())
	require.ErrorIs(t, err, os.ErrNotExist)
}
