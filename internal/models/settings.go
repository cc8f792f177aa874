package models

// Settings is the user-facing configuration object. It is persisted as one
// atomic blob and survives restarts; workflows read a fresh snapshot on every
// pass instead of caching it.
type Settings struct {
	IsClaimDrops         bool     `json:"isClaimDrops" msgpack:"isClaimDrops"`
	IsClaimPoints        bool     `json:"isClaimPoints" msgpack:"isClaimPoints"`
	IsClaimMoments       bool     `json:"isClaimMoments" msgpack:"isClaimMoments"`
	IsPriorityOnly       bool     `json:"isPriorityOnly" msgpack:"isPriorityOnly"`
	UsePriorityConnected bool     `json:"usePriorityConnected" msgpack:"usePriorityConnected"`
	PriorityList         []string `json:"priorityList" msgpack:"priorityList"`
	ExclusionList        []string `json:"exclusionList" msgpack:"exclusionList"`
}

func DefaultSettings() *Settings {
	return &Settings{
		IsClaimDrops:         true,
		IsClaimPoints:        true,
		IsClaimMoments:       true,
		UsePriorityConnected: true,
	}
}

func (s *Settings) IsPriorityGame(name string) bool {
	return contains(s.PriorityList, name)
}

func (s *Settings) IsExcludedGame(name string) bool {
	return contains(s.ExclusionList, name)
}

// WithPriorityGame returns a copy with the game appended to the priority list.
func (s *Settings) WithPriorityGame(name string) *Settings {
	if s.IsPriorityGame(name) {
		return s
	}
	next := *s
	next.PriorityList = append(append([]string{}, s.PriorityList...), name)
	return &next
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
