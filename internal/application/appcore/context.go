// Package appcore holds helpers shared by the application services.
package appcore

import (
	"context"
	"errors"
)

// Context keys
type contextKey string

const (
	userIDKey        contextKey = "userID"
	correlationIDKey contextKey = "correlationID"
)

var (
	ErrUserIDNotFound        = errors.New("user ID not found in context")
	ErrCorrelationIDNotFound = errors.New("correlation ID not found in context")
)

// GetUserID extracts the authenticated subject from the context
func GetUserID(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDKey).(string)
	if !ok || userID == "" {
		return "", ErrUserIDNotFound
	}
	return userID, nil
}

// WithUserID adds the authenticated subject to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetCorrelationID extracts the correlation ID from the context
func GetCorrelationID(ctx context.Context) (string, error) {
	correlationID, ok := ctx.Value(correlationIDKey).(string)
	if !ok || correlationID == "" {
		return "", ErrCorrelationIDNotFound
	}
	return correlationID, nil
}

// WithCorrelationID adds the correlation ID to the context
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}
