package api

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"board-api/domain"
)

const sseDataPrefix = "data: "

// streamNotifications relays the caller's move notifications as server-sent
// events. Only a caller with a loaded board for the project may subscribe.
// EventSource cannot set headers, so the bearer token may also be passed as
// the token query parameter.
func streamNotifications(boards Boards, auth Authenticator, source NotificationSource) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if token := c.QueryParam("token"); authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		userID, err := auth.UserIDFromAuthHeader(authHeader)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		projectID := c.Param("projectId")
		if _, err := boards.Session(userID, projectID); err != nil {
			return sessionError(c, err)
		}
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		res := c.Response()
		res.Header().Set(echo.HeaderContentType, "text/event-stream")
		res.Header().Set(echo.HeaderCacheControl, "no-cache")
		res.Header().Set(echo.HeaderConnection, "keep-alive")
		res.Header().Set("X-Accel-Buffering", "no")
		res.WriteHeader(http.StatusOK)
		flusher.Flush()

		ctx := c.Request().Context()
		notes := make(chan domain.Notification, 8)
		go source(ctx, userID, projectID, func(n domain.Notification) {
			select {
			case notes <- n:
			case <-ctx.Done():
			}
		})

		for {
			select {
			case <-ctx.Done():
				return nil
			case n := <-notes:
				data, err := sonic.Marshal(n)
				if err != nil {
					c.Logger().Error(err)
					continue
				}
				if _, err := res.Write([]byte(sseDataPrefix)); err != nil {
					return nil
				}
				if _, err := res.Write(data); err != nil {
					return nil
				}
				if _, err := res.Write([]byte("\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}
