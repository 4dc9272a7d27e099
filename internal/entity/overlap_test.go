package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowOverlaps(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	hour := Window{Start: base, End: base.Add(time.Hour)}

	tests := []struct {
		name  string
		other Window
		want  bool
	}{
		{
			name:  "back to back after",
			other: Window{Start: base.Add(time.Hour), End: base.Add(2 * time.Hour)},
			want:  false,
		},
		{
			name:  "back to back before",
			other: Window{Start: base.Add(-time.Hour), End: base},
			want:  false,
		},
		{
			name:  "starts one millisecond before end",
			other: Window{Start: base.Add(time.Hour - time.Millisecond), End: base.Add(2 * time.Hour)},
			want:  true,
		},
		{
			name:  "contained",
			other: Window{Start: base.Add(15 * time.Minute), End: base.Add(30 * time.Minute)},
			want:  true,
		},
		{
			name:  "containing",
			other: Window{Start: base.Add(-time.Hour), End: base.Add(3 * time.Hour)},
			want:  true,
		},
		{
			name:  "identical",
			other: hour,
			want:  true,
		},
		{
			name:  "disjoint",
			other: Window{Start: base.Add(5 * time.Hour), End: base.Add(6 * time.Hour)},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hour.Overlaps(tt.other))
			assert.Equal(t, tt.want, tt.other.Overlaps(hour), "overlap must be symmetric")
		})
	}
}

func TestHasOverlap(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	candidate := Window{Start: base, End: base.Add(time.Hour)}

	assert.False(t, HasOverlap(candidate, nil))
	assert.False(t, HasOverlap(candidate, []Window{
		{Start: base.Add(-2 * time.Hour), End: base},
		{Start: base.Add(time.Hour), End: base.Add(2 * time.Hour)},
	}))
	assert.True(t, HasOverlap(candidate, []Window{
		{Start: base.Add(-2 * time.Hour), End: base},
		{Start: base.Add(30 * time.Minute), End: base.Add(2 * time.Hour)},
	}))
}

func TestWindowValid(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	assert.True(t, Window{Start: base, End: base.Add(time.Minute)}.Valid())
	assert.False(t, Window{Start: base, End: base}.Valid())
	assert.False(t, Window{Start: base, End: base.Add(-time.Minute)}.Valid())
	assert.False(t, Window{}.Valid())
}
