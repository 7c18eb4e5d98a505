package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/owdiscord/trakt/internal/domain"
)

func (s *Server) handleLiveness(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleReadiness(c echo.Context) error {
	if err := s.storage.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "storage unreachable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

type userReportResponse struct {
	UserID       string `json:"user_id"`
	MessageScore int    `json:"message_score"`
	TimeScore    int    `json:"time_score"`
	HasAward     bool   `json:"has_award"`
	IsMuted      bool   `json:"is_muted"`
	IsBanned     bool   `json:"is_banned"`
	SanctionedAt string `json:"sanctioned_at,omitempty"`
}

func (s *Server) handleUserReport(c echo.Context) error {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}

	ctx := c.Request().Context()
	user, err := s.app.UserReport(ctx, domain.UserID(id))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not tracked")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load user")
	}

	// The live score can be ahead of storage between flushes.
	score, err := s.app.MessageScoreForUser(ctx, domain.UserID(id))
	if err == nil {
		user.MessageScore = score
	}

	resp := userReportResponse{
		UserID:       raw,
		MessageScore: user.MessageScore,
		TimeScore:    user.TimeScore,
		HasAward:     user.HasAward,
		IsMuted:      user.IsMuted,
		IsBanned:     user.IsBanned,
	}
	if user.SanctionedAt != nil {
		resp.SanctionedAt = user.SanctionedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return c.JSON(http.StatusOK, resp)
}
