package models

import "time"

// MaxAllowChannels caps how many allow-listed channels a campaign query may
// carry; the platform rejects larger batches.
const MaxAllowChannels = 30

type Game struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Slug        string `json:"slug"`
}

// Campaign is one drop campaign as the miner tracks it. Priority and
// IsOffline are local annotations, never sent back to the platform.
type Campaign struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Game    Game      `json:"game"`
	StartAt time.Time `json:"startAt"`
	EndAt   time.Time `json:"endAt"`

	IsAccountConnected bool     `json:"isAccountConnected"`
	Priority           int      `json:"priority"`
	IsOffline          bool     `json:"isOffline"`
	AllowChannels      []string `json:"allowChannels,omitempty"`
}

func (c Campaign) IsUpcoming(now time.Time) bool {
	return GetDropStatus(c.StartAt, c.EndAt, now, nil) == DropStatusUpcoming
}

func (c Campaign) IsExpired(now time.Time) bool {
	return GetDropStatus(c.StartAt, c.EndAt, now, nil) == DropStatusExpired
}

type DropStatus int

const (
	DropStatusActive DropStatus = iota
	DropStatusUpcoming
	DropStatusExpired
)

func (s DropStatus) String() string {
	switch s {
	case DropStatusUpcoming:
		return "upcoming"
	case DropStatusExpired:
		return "expired"
	default:
		return "active"
	}
}

// expiryGrace pads the remaining-time check so a drop that cannot finish
// before its window closes counts as expired already.
const expiryGrace = 10 * time.Minute

// GetDropStatus classifies a time window. A window is upcoming only while
// now is before both bounds, so a malformed window (end before start) never
// reports upcoming and expired always wins. When minutesLeft is given, a
// window too short to accumulate that much watch time plus the grace period
// is already expired.
func GetDropStatus(startAt, endAt, now time.Time, minutesLeft *int) DropStatus {
	if endAt.Before(now) {
		return DropStatusExpired
	}
	if minutesLeft != nil {
		needed := time.Duration(*minutesLeft)*time.Minute + expiryGrace
		if endAt.Before(now.Add(needed)) {
			return DropStatusExpired
		}
	}
	if now.Before(startAt) && now.Before(endAt) {
		return DropStatusUpcoming
	}
	return DropStatusActive
}

// ScanMode controls how wide the campaign refresh casts its net.
type ScanMode int32

const (
	ScanModeInitial ScanMode = iota
	ScanModePriorityOnly
	ScanModeAll
)

func (m ScanMode) String() string {
	switch m {
	case ScanModePriorityOnly:
		return "priority-only"
	case ScanModeAll:
		return "all"
	default:
		return "initial"
	}
}
