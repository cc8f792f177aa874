package models

import "time"

// RewardWindow suppresses re-claiming a benefit that was already granted
// recently. 2_592_000_000 ms, i.e. 30 days.
const RewardWindow = 2_592_000_000 * time.Millisecond

// Reward records one granted benefit id.
type Reward struct {
	ID            string    `json:"id" msgpack:"id"`
	LastAwardedAt time.Time `json:"lastAwardedAt" msgpack:"lastAwardedAt"`
}

// WithinWindow reports whether the award is recent enough to still suppress
// a re-claim of the same benefit.
func (r Reward) WithinWindow(now time.Time) bool {
	return now.Sub(r.LastAwardedAt) < RewardWindow
}

// FilterRewards keeps only rewards still inside the suppression window.
func FilterRewards(rewards []Reward, now time.Time) []Reward {
	kept := make([]Reward, 0, len(rewards))
	for _, r := range rewards {
		if r.WithinWindow(now) {
			kept = append(kept, r)
		}
	}
	return kept
}
