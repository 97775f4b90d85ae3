package podds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeason(t *testing.T) {
	valid := map[string]int{
		"2024":      2024,
		"2024/2025": 2024,
		"2024-2025": 2024,
		"2024/25":   2024,
		"1999-00":   1999,
		" 2023 ":    2023,
	}
	for in, want := range valid {
		got, err := ParseSeason(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "24", "2024/2026", "2024/26", "abcd", "2024/2"} {
		_, err := ParseSeason(in)
		assert.Error(t, err, in)
	}
}

func TestSeasonLabel(t *testing.T) {
	assert.Equal(t, "2024/2025", SeasonLabel(2024))
}

func TestCurrentSeason(t *testing.T) {
	august := time.Date(2025, time.August, 10, 0, 0, 0, 0, time.UTC)
	march := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 2025, SeasonForDate(august))
	assert.Equal(t, 2024, SeasonForDate(march))
	assert.Equal(t, 2024, CurrentSeason(nil, march))
	assert.Equal(t, 2023, CurrentSeason(&League{ID: 1, CurrentSeason: 2023}, march))
	assert.Equal(t, 2025, CurrentSeason(&League{ID: 1}, august))
}
