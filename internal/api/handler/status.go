package handler

import (
	"time"

	"dropminer/internal/models"
	"dropminer/internal/services"

	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo/v4"
	"github.com/samber/do"
)

type groupStatus struct {
	container *do.Injector
}

func (gr *groupStatus) Show(c echo.Context) error {
	scheduler, err := do.Invoke[*services.ServiceScheduler](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	campaigns, err := do.Invoke[*services.ServiceCampaign](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	state := scheduler.State()
	status := struct {
		Mode     string           `json:"mode"`
		Campaign *models.Campaign `json:"campaign"`
		Channel  *models.Channel  `json:"channel"`
		Drop     *models.Drop     `json:"drop"`
		Minutes  int              `json:"localMinutes"`
		Claiming bool             `json:"claiming"`
	}{
		Mode:     campaigns.Mode().String(),
		Campaign: state.Campaign(),
		Channel:  state.Channel(),
		Drop:     state.Drop(),
		Minutes:  state.LocalMinutes(),
		Claiming: state.Claiming(),
	}
	return httpx.RestAbort(c, status, nil)
}

func (gr *groupStatus) Campaigns(c echo.Context) error {
	campaigns, err := do.Invoke[*services.ServiceCampaign](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	now := time.Now()
	view := struct {
		Active   []models.Campaign `json:"active"`
		Upcoming []models.Campaign `json:"upcoming"`
		Offline  []models.Campaign `json:"offline"`
	}{
		Active:   campaigns.SortedActive(now),
		Upcoming: campaigns.SortedUpcoming(now),
		Offline:  campaigns.OfflineCampaigns(),
	}
	return httpx.RestAbort(c, view, nil)
}

func (gr *groupStatus) Progress(c echo.Context) error {
	campaigns, err := do.Invoke[*services.ServiceCampaign](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	view := struct {
		Drops   []models.Drop   `json:"drops"`
		Rewards []models.Reward `json:"rewards"`
	}{
		Drops:   campaigns.Progress(),
		Rewards: campaigns.Rewards(),
	}
	return httpx.RestAbort(c, view, nil)
}
