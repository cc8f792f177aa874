package services

import (
	"sync/atomic"

	"dropminer/internal/models"
)

// MinerState is the set of shared cells the workflows coordinate through.
// Values are immutable snapshots swapped atomically; readers take a fresh
// snapshot at the top of every tick and treat socket-side mutations as
// authoritative.
type MinerState struct {
	campaign atomic.Pointer[models.Campaign]
	channel  atomic.Pointer[models.Channel]
	drop     atomic.Pointer[models.Drop]

	localMinutes atomic.Int64
	refreshTicks atomic.Int64
	claiming     atomic.Bool
}

func NewMinerState() *MinerState {
	return &MinerState{}
}

func (s *MinerState) Campaign() *models.Campaign {
	return s.campaign.Load()
}

func (s *MinerState) SetCampaign(c *models.Campaign) {
	if c == nil {
		s.campaign.Store(nil)
		return
	}
	snapshot := *c
	s.campaign.Store(&snapshot)
}

func (s *MinerState) Channel() *models.Channel {
	return s.channel.Load()
}

func (s *MinerState) SetChannel(c *models.Channel) {
	if c == nil {
		s.channel.Store(nil)
		return
	}
	snapshot := *c
	s.channel.Store(&snapshot)
}

func (s *MinerState) Drop() *models.Drop {
	return s.drop.Load()
}

func (s *MinerState) SetDrop(d *models.Drop) {
	if d == nil {
		s.drop.Store(nil)
		return
	}
	snapshot := *d
	s.drop.Store(&snapshot)
}

// UpdateDrop swaps the current drop through fn; no-op when no drop is held.
// fn receives a copy, so mutating it is safe.
func (s *MinerState) UpdateDrop(fn func(d *models.Drop)) {
	for {
		old := s.drop.Load()
		if old == nil {
			return
		}
		next := *old
		fn(&next)
		if s.drop.CompareAndSwap(old, &next) {
			return
		}
	}
}

func (s *MinerState) LocalMinutes() int {
	return int(s.localMinutes.Load())
}

func (s *MinerState) AddMinute() int {
	return int(s.localMinutes.Add(1))
}

func (s *MinerState) ResetMinutes() {
	s.localMinutes.Store(0)
}

// TickRefresh advances the forced-refresh counter and reports whether the
// threshold fired; firing resets the counter.
func (s *MinerState) TickRefresh() bool {
	if s.refreshTicks.Add(1) >= FORCED_REFRESH_TICKS {
		s.refreshTicks.Store(0)
		return true
	}
	return false
}

// ForceRefresh makes the next TickRefresh fire immediately; used when a push
// notification reports progress we did not count ourselves.
func (s *MinerState) ForceRefresh() {
	s.refreshTicks.Store(FORCED_REFRESH_TICKS)
}

func (s *MinerState) Claiming() bool {
	return s.claiming.Load()
}

func (s *MinerState) SetClaiming(v bool) {
	s.claiming.Store(v)
}

// Reset clears everything the scheduler holds as "current".
func (s *MinerState) Reset() {
	s.campaign.Store(nil)
	s.channel.Store(nil)
	s.drop.Store(nil)
	s.localMinutes.Store(0)
	s.refreshTicks.Store(0)
}
