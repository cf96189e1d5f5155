package region

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Default(t *testing.T) {
	t.Run("flagged default wins", func(t *testing.T) {
		r := MustNewRegistry(Defaults())
		assert.Equal(t, "row", r.Default().ID)
	})

	t.Run("first entry when none flagged", func(t *testing.T) {
		r := MustNewRegistry([]Region{
			{ID: "us", ChannelID: "1"},
			{ID: "ca", ChannelID: "2"},
		})
		assert.Equal(t, "us", r.Default().ID)
	})

	t.Run("first flagged when several flagged", func(t *testing.T) {
		r := MustNewRegistry([]Region{
			{ID: "us", ChannelID: "1"},
			{ID: "ca", ChannelID: "2", IsDefault: true},
			{ID: "mx", ChannelID: "3", IsDefault: true},
		})
		assert.Equal(t, "ca", r.Default().ID)
	})
}

func TestRegistry_Lookup(t *testing.T) {
	r := MustNewRegistry(Defaults())

	tests := []struct {
		name    string
		id      string
		want    string
		outcome Outcome
	}{
		{name: "exact match", id: "eu", want: "eu", outcome: Matched},
		{name: "exact match default", id: "row", want: "row", outcome: Matched},
		{name: "empty id", id: "", want: "row", outcome: FallbackEmpty},
		{name: "unknown id", id: "mars", want: "row", outcome: FallbackUnknown},
		{name: "case sensitive", id: "EU", want: "row", outcome: FallbackUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Lookup(tt.id)
			assert.Equal(t, tt.want, res.Region.ID)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, tt.outcome != Matched, res.IsFallback())
		})
	}
}

func TestRegistry_UnknownEqualsMissing(t *testing.T) {
	r := MustNewRegistry(Defaults())
	for _, id := range []string{"x", "eu ", "  ", "1705754", "default"} {
		assert.Equal(t, r.ByID(""), r.ByID(id), "id %q", id)
	}
}

func TestRegistry_ChannelID(t *testing.T) {
	r := MustNewRegistry(Defaults())
	assert.Equal(t, "1705754", r.ChannelID("eu"))
	assert.Equal(t, "1705753", r.ChannelID("row"))
	assert.Equal(t, "1705753", r.ChannelID(""))
	assert.Equal(t, "1705753", r.ChannelID("nope"))
}

func TestRegistry_Strict(t *testing.T) {
	r := MustNewRegistry(Defaults())

	reg, ok := r.Strict("eu")
	require.True(t, ok)
	assert.Equal(t, "1705754", reg.ChannelID)

	_, ok = r.Strict("nope")
	assert.False(t, ok)

	_, ok = r.Strict("")
	assert.False(t, ok)
}

func TestRegistry_ByChannel(t *testing.T) {
	r := MustNewRegistry(Defaults())

	reg, ok := r.ByChannel("1705754")
	require.True(t, ok)
	assert.Equal(t, "eu", reg.ID)

	_, ok = r.ByChannel("0")
	assert.False(t, ok)
}

func TestNewRegistry_Validation(t *testing.T) {
	_, err := NewRegistry(nil)
	assert.ErrorIs(t, err, ErrNoRegions)

	_, err = NewRegistry([]Region{{ID: "a", ChannelID: "1"}, {ID: "a", ChannelID: "2"}})
	assert.ErrorIs(t, err, ErrDuplicateRegion)

	_, err = NewRegistry([]Region{{ID: "a", ChannelID: "1"}, {ID: "b", ChannelID: "1"}})
	assert.ErrorIs(t, err, ErrDuplicateRegion)

	_, err = NewRegistry([]Region{{ID: "a"}})
	assert.Error(t, err)
}

func TestRegistry_AllIsCopy(t *testing.T) {
	r := MustNewRegistry(Defaults())
	all := r.All()
	all[0].ChannelID = "mutated"
	assert.Equal(t, "1705754", r.ChannelID("eu"))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "regions.yaml")
	doc := `regions:
  - id: us
    channel_id: "10"
    label: United States
  - id: uk
    channel_id: "11"
    label: United Kingdom
    default: true
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	r, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "uk", r.Default().ID)
	assert.Equal(t, "10", r.ChannelID("us"))
	assert.Equal(t, "United States", r.ByID("us").Label)
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse([]byte("regions: []\n"))
	assert.ErrorIs(t, err, ErrNoRegions)

	_, err = Parse([]byte("regions: [\n"))
	assert.Error(t, err)
}
