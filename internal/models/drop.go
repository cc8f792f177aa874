package models

import (
	"fmt"
	"time"
)

// Drop is one time-based reward inside a campaign. CurrentMinutes is the
// server-side counter; local watch accounting lives outside the model.
type Drop struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	BenefitIDs []string  `json:"benefitIds"`
	CampaignID string    `json:"campaignId"`
	StartAt    time.Time `json:"startAt"`
	EndAt      time.Time `json:"endAt"`

	RequiredMinutes int `json:"requiredMinutes"`
	RequiredSubs    int `json:"requiredSubs"`

	IsClaimed           bool   `json:"isClaimed"`
	HasPreconditionsMet bool   `json:"hasPreconditionsMet"`
	CurrentMinutes      int    `json:"currentMinutes"`
	InstanceID          string `json:"instanceId,omitempty"`
}

// MinutesWatchedMet reports whether enough time was accumulated. The
// platform grants the award one minute past the nominal requirement, hence
// the +1.
func (d Drop) MinutesWatchedMet() bool {
	return d.CurrentMinutes >= d.RequiredMinutes+1
}

// MinutesLeft is the remaining watch time before MinutesWatchedMet holds.
func (d Drop) MinutesLeft() int {
	left := d.RequiredMinutes + 1 - d.CurrentMinutes
	if left < 0 {
		return 0
	}
	return left
}

func (d Drop) Status(now time.Time) DropStatus {
	left := d.MinutesLeft()
	return GetDropStatus(d.StartAt, d.EndAt, now, &left)
}

// RenumberDrops prefixes each name with its position, "1/3, Emote" style,
// so claim notifications read naturally. Input order is preserved.
func RenumberDrops(drops []Drop) []Drop {
	total := len(drops)
	for i := range drops {
		drops[i].Name = fmt.Sprintf("%d/%d, %s", i+1, total, drops[i].Name)
	}
	return drops
}
