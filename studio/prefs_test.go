package studio_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tahtiseq/tahti/studio"
)

func TestPrefsMissingFileYieldsDefaults(t *testing.T) {
	p, err := studio.LoadPrefs(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	assert.Equal(t, 50.0, p.SplitRatio())
}

func TestPrefsSplitRatioRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yml")
	p, err := studio.LoadPrefs(path)
	require.NoError(t, err)
	p.SetSplitRatio(72.5)
	p.Set("mixer.visible", true)
	require.NoError(t, p.Save())

	p2, err := studio.LoadPrefs(path)
	require.NoError(t, err)
	assert.Equal(t, 72.5, p2.SplitRatio())
	v, ok := p2.Get("mixer.visible")
	require.True(t, ok)
	assert.Equal(t, true, v)
}

func TestPrefsSplitRatioClamped(t *testing.T) {
	p, err := studio.LoadPrefs(filepath.Join(t.TempDir(), "prefs.yml"))
	require.NoError(t, err)
	p.SetSplitRatio(150)
	assert.Equal(t, 100.0, p.SplitRatio())
	p.SetSplitRatio(-4)
	assert.Equal(t, 0.0, p.SplitRatio())
}
