package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

const healthTimeout = 2 * time.Second

// Register wires up all board routes on the provided Echo instance.
func Register(e *echo.Echo, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = log.StandardLogger()
	}
	g := e.Group("/api/projects/:projectId/board")
	g.POST("/load", loadBoard(deps.Boards, deps.Auth))
	g.GET("", getBoard(deps.Boards, deps.Auth))
	g.POST("/drag-end", dragEnd(deps.Boards, deps.Auth, deps.Deduper, deps.Logger))
	g.PUT("/filter", changeFilter(deps.Boards, deps.Auth))
	if deps.Notifications != nil {
		g.GET("/notifications", streamNotifications(deps.Boards, deps.Auth, deps.Notifications))
	}
	e.GET("/healthz", healthz(deps.Health))
}

type loadRequest struct {
	WorkspaceID string `json:"workspaceId"`
}

type filterRequest struct {
	Selector domain.Selector `json:"selector"`
}

type dragEndResponse struct {
	domain.MoveResult
	Error string       `json:"error,omitempty"`
	Board *domain.View `json:"board,omitempty"`
}

func healthz(p Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if p == nil {
			return c.NoContent(http.StatusOK)
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			return c.String(http.StatusServiceUnavailable, err.Error())
		}
		return c.NoContent(http.StatusOK)
	}
}

// decodeBody reads a JSON body. An empty body leaves v untouched; anything
// else must decode completely.
func decodeBody(c echo.Context, v any) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodySize))
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	dec := sonic.ConfigStd.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func authenticate(c echo.Context, auth Authenticator) (string, error) {
	return auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
}

func loadBoard(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req loadRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		sess, err := boards.Load(c.Request().Context(), userID, c.Param("projectId"), req.WorkspaceID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, sess.View())
	}
}

func getBoard(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		sess, err := boards.Session(userID, c.Param("projectId"))
		if err != nil {
			return sessionError(c, err)
		}
		return c.JSON(http.StatusOK, sess.View())
	}
}

func changeFilter(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		sess, err := boards.Session(userID, c.Param("projectId"))
		if err != nil {
			return sessionError(c, err)
		}
		req := filterRequest{Selector: domain.All()}
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid selector")
		}
		return c.JSON(http.StatusOK, sess.OnFilterChange(req.Selector))
	}
}

func dragEnd(boards Boards, auth Authenticator, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newDragEndMetrics(c.Request().Context(), logger)
		c.SetRequest(c.Request().WithContext(ctx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		projectID := c.Param("projectId")
		metrics.SetProject(projectID)

		authStart := time.Now()
		userID, authErr := authenticate(c, auth)
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetError("auth", authErr)
			return c.String(http.StatusUnauthorized, authErr.Error())
		}
		sess, sessErr := boards.Session(userID, projectID)
		if sessErr != nil {
			metrics.SetError("session", sessErr)
			return sessionError(c, sessErr)
		}

		var drag domain.DragResult
		if decErr := decodeBody(c, &drag); decErr != nil {
			metrics.SetError("decode", decErr)
			return c.String(http.StatusBadRequest, "invalid body")
		}

		key := strings.TrimSpace(c.Request().Header.Get(IdempotencyKeyHeader))
		metrics.SetIdempotencyKeyProvided(key != "")
		if key != "" && deduper != nil {
			added, dedupErr := deduper.Add(ctx, userID, key)
			if dedupErr != nil {
				// Redis being unavailable must not block moves; the board
				// still rejects overlapping moves of one issue.
				logger.WithError(dedupErr).Warn("idempotency check failed")
			} else if !added {
				metrics.SetError("duplicate", domain.ErrDuplicateRequest)
				return c.String(http.StatusConflict, domain.ErrDuplicateRequest.Error())
			}
		}

		moveStart := time.Now()
		res, moveErr := sess.OnDragEnd(ctx, drag)
		metrics.ObserveMove(time.Since(moveStart))
		metrics.SetResult(int64(res.IssueID), res.Outcome.String())

		status := http.StatusOK
		resp := dragEndResponse{MoveResult: res}
		if moveErr != nil {
			status = statusForMoveError(moveErr)
			resp.Error = moveErr.Error()
			metrics.SetError(errorStage(moveErr), moveErr)
			// Nothing was applied, so the client may retry under the same key.
			if key != "" && deduper != nil {
				if rmErr := deduper.Remove(context.WithoutCancel(ctx), userID, key); rmErr != nil {
					logger.WithError(rmErr).Warn("failed to release idempotency key")
				}
			}
		}
		if res.Outcome != domain.MoveNoop || moveErr == nil {
			view := sess.View()
			resp.Board = &view
		}

		encodeStart := time.Now()
		err = c.JSON(status, resp)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetError("encode_response", nil)
		}
		return err
	}
}

func statusForMoveError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidMove):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrMovePending):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPersistFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorStage(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidMove):
		return "invalid_move"
	case errors.Is(err, domain.ErrMovePending):
		return "pending"
	case errors.Is(err, domain.ErrPersistFailed):
		return "persist"
	default:
		return "move"
	}
}

func sessionError(c echo.Context, err error) error {
	if errors.Is(err, domain.ErrBoardNotLoaded) {
		return c.String(http.StatusNotFound, err.Error())
	}
	c.Logger().Error(err)
	return c.String(http.StatusInternalServerError, err.Error())
}
