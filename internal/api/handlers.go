package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/postersync/postersync/internal/config"
	"github.com/postersync/postersync/internal/history"
)

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:  "ok",
		Version: config.Version,
		Uptime:  time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.syncer.Status())
}

func (s *Server) handleHistory(c echo.Context) error {
	if s.store == nil {
		return echo.NewHTTPError(http.StatusNotFound, "history is disabled")
	}

	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}

	events, err := s.store.Recent(limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to query history")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to query history")
	}
	if events == nil {
		events = []history.Placement{}
	}
	return c.JSON(http.StatusOK, events)
}

func (s *Server) handleTasks(c echo.Context) error {
	if s.scheduler == nil {
		return echo.NewHTTPError(http.StatusNotFound, "scheduler is not running")
	}
	return c.JSON(http.StatusOK, s.scheduler.ListTasks())
}

func (s *Server) handleRunTask(c echo.Context) error {
	if s.scheduler == nil {
		return echo.NewHTTPError(http.StatusNotFound, "scheduler is not running")
	}
	if err := s.scheduler.RunNow(c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}
