package server

import (
	"net/http"
	"strconv"

	"apiorch/pkg/log"

	"github.com/labstack/echo/v4"
)

const defaultRecentLimit = 50

func (s *Server) healthHandler(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "OK")
}

func (s *Server) statusHandler(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, s.orch.GetStatus())
}

func (s *Server) reloadHandler(ctx echo.Context) error {
	if err := s.orch.ReloadEndpoints(ctx.Request().Context()); err != nil {
		log.Error().Err(err).Msg("Endpoint reload failed")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Reload failed: " + err.Error(),
		})
	}

	report := s.orch.GetStatus()
	return ctx.JSON(http.StatusOK, map[string]int{
		"endpoints": report.Total,
	})
}

func (s *Server) recentHandler(ctx echo.Context) error {
	if s.recent == nil {
		return ctx.JSON(http.StatusNotFound, map[string]string{
			"error": "Request log is not kept in memory",
		})
	}

	limit := defaultRecentLimit
	if raw := ctx.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return ctx.JSON(http.StatusBadRequest, map[string]string{
				"error": "limit must be a non-negative integer",
			})
		}
		limit = n
	}

	if id := ctx.QueryParam("request_id"); id != "" {
		return ctx.JSON(http.StatusOK, s.recent.ByRequest(id))
	}
	return ctx.JSON(http.StatusOK, s.recent.Recent(limit))
}
