package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/woundcare/woundcare/internal/platform/auth"
)

// Recovery turns a handler panic into a 500 and logs it with the caller and
// route. Once the response is committed, as on an upgraded WebSocket, the
// panic is only logged.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				perr, ok := r.(error)
				if !ok {
					perr = fmt.Errorf("%v", r)
				}
				var stack [4096]byte
				n := runtime.Stack(stack[:], false)

				req := c.Request()
				committed := c.Response().Committed
				logger.Error().
					Err(perr).
					Str("request_id", requestID(c)).
					Str("uid", auth.UserIDFromContext(req.Context())).
					Str("method", req.Method).
					Str("route", c.Path()).
					Bool("committed", committed).
					Bytes("stack", stack[:n]).
					Msg("panic recovered")

				if committed {
					err = nil
					return
				}
				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(perr)
			}()
			return next(c)
		}
	}
}
