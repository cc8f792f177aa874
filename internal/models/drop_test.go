package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMinutesWatchedMet(t *testing.T) {
	tests := []struct {
		name     string
		current  int
		required int
		want     bool
	}{
		{"at requirement is not enough", 30, 30, false},
		{"one past requirement", 31, 30, true},
		{"well past", 45, 30, true},
		{"zero progress", 0, 30, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Drop{CurrentMinutes: tt.current, RequiredMinutes: tt.required}
			assert.Equal(t, tt.want, d.MinutesWatchedMet())
		})
	}
}

func TestMinutesLeft(t *testing.T) {
	assert.Equal(t, 31, Drop{RequiredMinutes: 30}.MinutesLeft())
	assert.Equal(t, 1, Drop{RequiredMinutes: 30, CurrentMinutes: 30}.MinutesLeft())
	assert.Equal(t, 0, Drop{RequiredMinutes: 30, CurrentMinutes: 31}.MinutesLeft())
	assert.Equal(t, 0, Drop{RequiredMinutes: 30, CurrentMinutes: 99}.MinutesLeft())
}

func TestDropStatusAccountsForRemainingMinutes(t *testing.T) {
	now := time.Now()
	d := Drop{
		RequiredMinutes: 60,
		StartAt:         now.Add(-time.Hour),
		EndAt:           now.Add(30 * time.Minute),
	}
	// 61 minutes left plus grace cannot fit into a 30 minute window
	assert.Equal(t, DropStatusExpired, d.Status(now))

	d.EndAt = now.Add(2 * time.Hour)
	assert.Equal(t, DropStatusActive, d.Status(now))
}

func TestRenumberDrops(t *testing.T) {
	drops := RenumberDrops([]Drop{{Name: "Emote"}, {Name: "Badge"}})
	assert.Equal(t, "1/2, Emote", drops[0].Name)
	assert.Equal(t, "2/2, Badge", drops[1].Name)

	assert.Empty(t, RenumberDrops(nil))
}
