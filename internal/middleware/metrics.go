package middleware

import (
	"strconv"
	"time"

	"catalog-service/pkg/logger"
	"catalog-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// MetricsMiddleware records Prometheus metrics and an access log line for
// every request
func MetricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()

		err := next(c)
		if err != nil {
			// Let echo write the error response so the status is final
			c.Error(err)
		}

		duration := time.Since(start)
		status := c.Response().Status

		prometheus.RecordHTTPRequest(c.Request().Method, c.Path(), strconv.Itoa(status), duration)

		logger.FromContext(c).Info("HTTP Request",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Request().URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", duration),
			zap.String("ip", c.RealIP()),
		)
		return nil
	}
}
