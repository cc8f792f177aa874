package handler

import (
	"dropminer/internal/models"
	"dropminer/internal/services"

	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo/v4"
	"github.com/samber/do"
)

type groupSettings struct {
	container *do.Injector
}

func (gr *groupSettings) Show(c echo.Context) error {
	settings, err := do.Invoke[*services.ServiceSettings](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}
	return httpx.RestAbort(c, settings.Get(), nil)
}

// Update replaces the whole settings blob. Workflows pick the change up on
// their next pass; nothing is restarted.
func (gr *groupSettings) Update(c echo.Context) error {
	settings, err := do.Invoke[*services.ServiceSettings](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	var payload models.Settings
	if err := c.Bind(&payload); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Invalid))
	}

	updated, err := settings.Update(c.Request().Context(), func(s *models.Settings) {
		*s = payload
	})
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}
	return httpx.RestAbort(c, updated, nil)
}
