package logger

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// FromContext retrieves the request-scoped logger from the Echo context,
// falling back to the global logger.
func FromContext(c echo.Context) *zap.Logger {
	log, ok := c.Get("logger").(*zap.Logger)
	if !ok {
		return GetLogger()
	}
	return log
}
