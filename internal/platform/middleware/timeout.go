package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/televita/rxprice/internal/platform/fhir"
)

// RequestTimeout puts a deadline on the request context. Upstream calls made
// with that context abort when it expires, including any retry backoff.
//
// The handler runs on the request goroutine. If the deadline has passed when
// it returns and nothing has been written, the response is a 504 with an
// OperationOutcome body.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return c.JSON(http.StatusGatewayTimeout, fhir.TimeoutOutcome())
			}
			return err
		}
	}
}
