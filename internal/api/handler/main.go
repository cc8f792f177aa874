package handler

import (
	"net/http"

	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/do"
)

type Config struct {
	Container *do.Injector
	Mode      string
}

// New builds the local ops surface: a status view plus settings management.
// It binds to localhost only; there is no auth.
func New(cfg *Config) (http.Handler, error) {
	r := echo.New()
	r.Pre(middleware.RemoveTrailingSlash())
	if cfg.Mode == "debug" {
		r.Debug = true
		pprof.Register(r)
	}

	r.JSONSerializer = httpx.SegmentJSONSerializer{}
	r.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339}\t${method}\t${uri}\t${status}\t${latency_human}\n",
	}))
	r.Use(middleware.Recover())

	r.GET("", func(c echo.Context) error {
		return c.String(http.StatusOK, "⛏️")
	})

	routesAPIv1 := r.Group("/api/v1")
	{
		s := groupStatus{cfg.Container}
		routesAPIv1.GET("/status", s.Show)
		routesAPIv1.GET("/campaigns", s.Campaigns)
		routesAPIv1.GET("/progress", s.Progress)

		st := groupSettings{cfg.Container}
		routesAPIv1.GET("/settings", st.Show)
		routesAPIv1.PUT("/settings", st.Update)
	}

	return r, nil
}
