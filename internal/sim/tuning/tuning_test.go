package tuning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaults_Valid(t *testing.T) {
	require.NoError(t, Defaults().Validate())
}

func TestLoad_PartialOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	raw := "tick_rate_hz: 20\nfusion:\n  fuse_heat: 0.3\n  production_time: 600\n  meltdown_time: 900\n"
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 20, got.TickRateHz)
	require.Equal(t, 0.3, got.Fusion.FuseHeat)
	require.Equal(t, 600.0, got.Fusion.ProductionTime)
	// Untouched keys keep their defaults.
	require.Equal(t, Defaults().Fusion.HeatRate, got.Fusion.HeatRate)
	require.True(t, got.Rules.ReactorExplosions)
}

func TestValidate_MeltdownMustExceedProduction(t *testing.T) {
	tu := Defaults()
	tu.Fusion.MeltdownTime = tu.Fusion.ProductionTime
	require.ErrorContains(t, tu.Validate(), "meltdown_time")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.True(t, os.IsNotExist(err))
}

func TestParse_RoundTripsThroughYAML(t *testing.T) {
	tu := Defaults()
	tu.Fusion.FuseHeat = 0.35
	b, err := yaml.Marshal(tu)
	require.NoError(t, err)

	got, err := Parse(b)
	require.NoError(t, err)
	require.Equal(t, tu, got)
	require.Equal(t, tu.Digest(), got.Digest())
	require.NotEqual(t, Defaults().Digest(), got.Digest())
}

func TestParse_RejectsInvalid(t *testing.T) {
	_, err := Parse([]byte("fusion:\n  fuse_heat: 2\n"))
	require.ErrorContains(t, err, "fuse_heat")
}
