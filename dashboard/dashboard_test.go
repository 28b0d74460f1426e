package dashboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGrowth(t *testing.T) {
	tests := []struct {
		name              string
		current, previous int64
		want              float64
	}{
		{"no baseline", 5000, 0, 0},
		{"both zero", 0, 0, 0},
		{"doubled", 10000, 5000, 100},
		{"dropped to zero", 0, 5000, -100},
		{"one decimal", 11500, 10000, 15},
		{"thirds", 4000, 3000, 33.3},
		{"half to even down", 10025, 10000, 0.2},
		{"half to even up", 10075, 10000, 0.8},
		{"negative", 2000, 3000, -33.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Growth(tt.current, tt.previous))
		})
	}
}

func TestRetention(t *testing.T) {
	assert.Equal(t, int64(0), Retention(0, 0))
	assert.Equal(t, int64(100), Retention(4, 4))
	assert.Equal(t, int64(67), Retention(2, 3))
	assert.Equal(t, int64(12), Retention(1, 8))  // 12.5 rounds to even
	assert.Equal(t, int64(38), Retention(3, 8))  // 37.5 rounds to even
	assert.Equal(t, int64(0), Retention(0, 12))
}

func TestTrailingMonths(t *testing.T) {
	asOf := time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC)
	months := TrailingMonths(asOf, 6)

	labels := make([]string, len(months))
	for i, m := range months {
		labels[i] = m.Label
	}
	assert.Equal(t, []string{"Sep", "Oct", "Nov", "Dec", "Jan", "Feb"}, labels)
	assert.Equal(t, "2025-09", months[0].Key)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), months[5].Start)

	assert.Nil(t, TrailingMonths(asOf, 0))
}

func TestSeriesFrom(t *testing.T) {
	months := TrailingMonths(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), 3)
	s := SeriesFrom(months, map[string]int64{"2026-01": 4, "2026-03": 2, "2025-06": 9})

	assert.Equal(t, []string{"Jan", "Feb", "Mar"}, s.Labels)
	assert.Equal(t, []int64{4, 0, 2}, s.Data)
}
