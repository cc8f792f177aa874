package twitch

import (
	"encoding/json"
	"time"
)

type persistedQuery struct {
	Version    int    `json:"version"`
	Sha256Hash string `json:"sha256Hash"`
}

type gqlExtensions struct {
	PersistedQuery persistedQuery `json:"persistedQuery"`
}

type gqlRequest struct {
	OperationName string         `json:"operationName"`
	Extensions    gqlExtensions  `json:"extensions"`
	Variables     map[string]any `json:"variables"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

type gameData struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Slug        string `json:"slug"`
}

type dropSelf struct {
	CurrentMinutesWatched int    `json:"currentMinutesWatched"`
	IsClaimed             bool   `json:"isClaimed"`
	DropInstanceID        string `json:"dropInstanceID"`
	HasPreconditionsMet   bool   `json:"hasPreconditionsMet"`
}

type benefitEdge struct {
	Benefit struct {
		ID string `json:"id"`
	} `json:"benefit"`
}

type timeBasedDrop struct {
	ID                     string        `json:"id"`
	Name                   string        `json:"name"`
	StartAt                time.Time     `json:"startAt"`
	EndAt                  time.Time     `json:"endAt"`
	RequiredMinutesWatched int           `json:"requiredMinutesWatched"`
	RequiredSubs           int           `json:"requiredSubs"`
	BenefitEdges           []benefitEdge `json:"benefitEdges"`
	Self                   *dropSelf     `json:"self"`
}

type dashboardPayload struct {
	CurrentUser struct {
		DropCampaigns []struct {
			ID      string    `json:"id"`
			Name    string    `json:"name"`
			Game    gameData  `json:"game"`
			StartAt time.Time `json:"startAt"`
			EndAt   time.Time `json:"endAt"`
			Self    struct {
				IsAccountConnected bool `json:"isAccountConnected"`
			} `json:"self"`
		} `json:"dropCampaigns"`
	} `json:"currentUser"`
}

type inventoryPayload struct {
	CurrentUser struct {
		Inventory struct {
			GameEventDrops []struct {
				ID            string    `json:"id"`
				LastAwardedAt time.Time `json:"lastAwardedAt"`
			} `json:"gameEventDrops"`
			DropCampaignsInProgress []struct {
				ID             string          `json:"id"`
				TimeBasedDrops []timeBasedDrop `json:"timeBasedDrops"`
			} `json:"dropCampaignsInProgress"`
		} `json:"inventory"`
	} `json:"currentUser"`
}

type detailPayload struct {
	User struct {
		DropCampaign *struct {
			ID    string   `json:"id"`
			Name  string   `json:"name"`
			Game  gameData `json:"game"`
			Allow struct {
				Channels []struct {
					Name string `json:"name"`
				} `json:"channels"`
			} `json:"allow"`
			Self struct {
				IsAvailable bool `json:"isAvailable"`
			} `json:"self"`
			TimeBasedDrops []timeBasedDrop `json:"timeBasedDrops"`
		} `json:"dropCampaign"`
	} `json:"user"`
}

type directoryPayload struct {
	Game struct {
		ID      string `json:"id"`
		Streams struct {
			Edges []struct {
				Node struct {
					ID          string `json:"id"`
					Broadcaster struct {
						ID    string `json:"id"`
						Login string `json:"login"`
					} `json:"broadcaster"`
					Game gameData `json:"game"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"streams"`
	} `json:"game"`
}

type streamUser struct {
	ID     string `json:"id"`
	Login  string `json:"login"`
	Stream *struct {
		ID   string   `json:"id"`
		Game gameData `json:"game"`
	} `json:"stream"`
}

type usersPayload struct {
	Users []streamUser `json:"users"`
}

type userPayload struct {
	User *streamUser `json:"user"`
}

type pointsPayload struct {
	Community struct {
		Channel struct {
			ID   string `json:"id"`
			Self struct {
				CommunityPoints struct {
					Balance        int `json:"balance"`
					AvailableClaim *struct {
						ID string `json:"id"`
					} `json:"availableClaim"`
				} `json:"communityPoints"`
			} `json:"self"`
		} `json:"channel"`
	} `json:"community"`
}

type playbackTokenPayload struct {
	StreamPlaybackAccessToken struct {
		Value     string `json:"value"`
		Signature string `json:"signature"`
	} `json:"streamPlaybackAccessToken"`
}

type helixStreamsResponse struct {
	Data []struct {
		ID       string `json:"id"`
		UserID   string `json:"user_id"`
		UserName string `json:"user_login"`
		GameID   string `json:"game_id"`
		GameName string `json:"game_name"`
		Type     string `json:"type"`
	} `json:"data"`
}
