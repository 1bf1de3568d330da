package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTaxonomy(t *testing.T) {
	tax := DefaultTaxonomy()
	labels := tax.Labels()

	assert.Len(t, labels, 33)
	assert.Len(t, tax.Groups, 6)
	assert.Equal(t, "pothole", labels[0])
	assert.Equal(t, "other", labels[len(labels)-1])

	assert.True(t, tax.Contains("Water Leakage"))
	assert.False(t, tax.Contains("earthquake"))
	assert.Equal(t, "accident spot", tax.Canonical(" ACCIDENT SPOT "))
	assert.Equal(t, "", tax.Canonical("earthquake"))
}

func TestParseTaxonomy(t *testing.T) {
	tax, err := ParseTaxonomy([]byte(`
groups:
  - name: roads
    labels: [pothole, " damaged road "]
  - name: water
    labels:
      - water leakage
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"pothole", "damaged road", "water leakage"}, tax.Labels())
}

func TestParseTaxonomyErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"duplicate", "groups: [{name: a, labels: [pothole]}, {name: b, labels: [Pothole]}]", "duplicate"},
		{"empty label", "groups: [{name: a, labels: [pothole, '']}]", "empty label"},
		{"no labels", "groups: []", "no labels"},
		{"bad yaml", "groups: [", "parse taxonomy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTaxonomy([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadTaxonomy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.yaml")
	require.NoError(t, os.WriteFile(path, []byte("groups:\n  - name: x\n    labels: [theft]\n"), 0o644))

	tax, err := LoadTaxonomy(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"theft"}, tax.Labels())

	_, err = LoadTaxonomy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
