package metric

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer - отдельный echo под /metrics и /health, живёт на своём
// порту рядом с основным сервером и не проходит через его middleware
func NewServer() *echo.Echo {
	e := echo.New()

	e.HideBanner = true
	e.HidePort = true

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "pitchcall",
		})
	})

	return e
}
