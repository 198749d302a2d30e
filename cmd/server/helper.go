package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/router-providers/internal/provider"
	"github.com/yourorg/router-providers/internal/registry"
)

// setupLogging configures the logging for the application
func setupLogging(level, format string) {
	switch strings.ToLower(format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	switch strings.ToLower(level) {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	logrus.Info("Logging configured")
}

// writeJSON sends v with the given status code
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Warnf("Failed to encode response: %v", err)
	}
}

// statusFor maps provider error kinds onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrNetworkNotConfigured), errors.Is(err, provider.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, provider.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, provider.ErrTransient), errors.Is(err, provider.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, provider.ErrConfiguration):
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

// errorResponse writes err as a JSON error body
func errorResponse(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logrus.Warn(err.Error())
	}
	writeJSON(w, status, map[string]string{"status": "error", "error": err.Error()})
}
