package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgeAt(t *testing.T) {
	eventStart := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name      string
		birthDate time.Time
		at        time.Time
		want      int
	}{
		{
			name:      "birthday on event day",
			birthDate: NewDate(2020, 6, 1).Time,
			at:        eventStart,
			want:      5,
		},
		{
			name:      "birthday one day after event",
			birthDate: NewDate(2020, 6, 2).Time,
			at:        eventStart,
			want:      4,
		},
		{
			name:      "birthday earlier in the year",
			birthDate: NewDate(2019, 1, 15).Time,
			at:        eventStart,
			want:      6,
		},
		{
			name:      "leap day birthday before march in a common year",
			birthDate: NewDate(2016, 2, 29).Time,
			at:        time.Date(2021, 2, 28, 10, 0, 0, 0, time.UTC),
			want:      4,
		},
		{
			name:      "leap day birthday on first of march in a common year",
			birthDate: NewDate(2016, 2, 29).Time,
			at:        time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC),
			want:      5,
		},
		{
			name:      "start after local midnight is still the previous UTC day",
			birthDate: NewDate(2020, 6, 1).Time,
			at:        time.Date(2025, 6, 1, 0, 30, 0, 0, time.FixedZone("CEST", 2*60*60)),
			want:      4,
		},
		{
			name:      "start before local midnight is already the next UTC day",
			birthDate: NewDate(2020, 6, 1).Time,
			at:        time.Date(2025, 5, 31, 20, 30, 0, 0, time.FixedZone("EDT", -4*60*60)),
			want:      5,
		},
		{
			name:      "born on event day",
			birthDate: NewDate(2025, 6, 1).Time,
			at:        eventStart,
			want:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			age, err := AgeAt(tt.birthDate, tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.want, age)
		})
	}
}

func TestAgeAtMalformed(t *testing.T) {
	eventStart := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	_, err := AgeAt(time.Time{}, eventStart)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = AgeAt(NewDate(2020, 1, 1).Time, time.Time{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = AgeAt(NewDate(2025, 6, 2).Time, eventStart)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestIsEligible(t *testing.T) {
	eventStart := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		birthDate Date
		minAge    int
		maxAge    int
		want      bool
	}{
		{name: "turns min age on event day", birthDate: NewDate(2020, 6, 1), minAge: 5, maxAge: 8, want: true},
		{name: "one day short of min age", birthDate: NewDate(2020, 6, 2), minAge: 5, maxAge: 8, want: false},
		{name: "exactly max age", birthDate: NewDate(2017, 1, 1), minAge: 5, maxAge: 8, want: true},
		{name: "turned max age plus one on event day", birthDate: NewDate(2016, 6, 1), minAge: 5, maxAge: 8, want: false},
		{name: "day before turning max age plus one", birthDate: NewDate(2016, 6, 2), minAge: 5, maxAge: 8, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := IsEligible(tt.birthDate.Time, eventStart, tt.minAge, tt.maxAge)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestIsEligibleIgnoresStartLocation(t *testing.T) {
	instant := time.Date(2025, 5, 31, 22, 30, 0, 0, time.UTC)
	birth := NewDate(2020, 6, 1).Time

	for _, loc := range []*time.Location{time.UTC, time.FixedZone("CEST", 2*60*60), time.FixedZone("PDT", -7*60*60)} {
		ok, err := IsEligible(birth, instant.In(loc), 5, 8)
		require.NoError(t, err)
		assert.False(t, ok, loc.String())
	}
}

func TestIsEligibleFailsClosed(t *testing.T) {
	eventStart := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)

	ok, err := IsEligible(time.Time{}, eventStart, 5, 8)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrValidation)

	ok, err = IsEligible(NewDate(2019, 1, 1).Time, eventStart, 8, 5)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrValidation)
}
