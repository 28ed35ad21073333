package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/custody/internal/ledger"
)

// Audit logs one line per request. Requests failing with an error are logged
// with the status the ErrorHandler will render and the error's wire code;
// server errors log at error level, client errors at warn.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = StatusFor(err)
		}

		attrs := []slog.Attr{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		if party := c.Params("party"); party != "" {
			attrs = append(attrs, slog.String("party", party))
		}
		if requestID, _ := c.Locals(requestIDHeader).(string); requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}

		level := slog.LevelInfo
		if err != nil {
			attrs = append(attrs, slog.String("code", ledger.Code(err)), slog.Any("error", err))
			level = slog.LevelWarn
			if status >= fiber.StatusInternalServerError {
				level = slog.LevelError
			}
		}
		logger.LogAttrs(context.Background(), level, "request completed", attrs...)
		return err
	}
}
