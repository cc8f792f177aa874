package models

// Channel is a broadcaster candidate. CurrentSid is the live broadcast id
// fed to the viewership beacon; HlsURL is the resolved master playlist and
// is filled lazily by the watcher.
type Channel struct {
	ID    string `json:"id"`
	Login string `json:"login"`

	GameID          string `json:"gameId,omitempty"`
	IsOnline        bool   `json:"isOnline"`
	CurrentSid      string `json:"currentSid,omitempty"`
	CurrentGameID   string `json:"currentGameId,omitempty"`
	CurrentGameName string `json:"currentGameName,omitempty"`
	HlsURL          string `json:"-"`
}

// WatchResult is one simulated minute of viewership. HlsURL carries back a
// refreshed playlist URL when the watcher had to re-resolve it.
type WatchResult struct {
	Success bool
	HlsURL  string
}

// PointsContext is the points balance plus the pending claim, if any.
type PointsContext struct {
	ChannelID string
	Balance   int
	ClaimID   string
}

// PlaybackToken authorizes playlist access for one channel.
type PlaybackToken struct {
	Value     string
	Signature string
}
