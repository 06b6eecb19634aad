package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:30", 570, false},
		{"22:00", 1320, false},
		{"24:00", EndOfDay, false},
		{" 7:05 ", 425, false},
		{"24:30", 0, true},
		{"12:60", 0, true},
		{"noon", 0, true},
		{"12", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimeOfDay_On(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	date := time.Date(2026, 3, 10, 15, 45, 0, 0, loc)
	got := MustTimeOfDay("18:30").On(date)
	assert.Equal(t, time.Date(2026, 3, 10, 18, 30, 0, 0, loc), got)
	assert.Equal(t, "18:30", TimeOfDayOf(got).String())

	midnight := EndOfDay.On(date)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, loc), midnight)
}

func TestTimeOfDay_Text(t *testing.T) {
	var tod TimeOfDay
	require.NoError(t, tod.UnmarshalText([]byte("14:15")))
	assert.Equal(t, MustTimeOfDay("14:15"), tod)

	b, err := tod.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "14:15", string(b))
}
