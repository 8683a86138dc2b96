package identity

import (
	"context"
	"errors"
)

// Key for consumer identity in context
type contextKey string

const (
	consumerNameKey contextKey = "consumerName"
	requestIDKey    contextKey = "requestID"
)

// ErrConsumerNotFound is returned when no consumer name is found in context
var ErrConsumerNotFound = errors.New("consumer name not found in context")

// WithConsumer adds a consumer name to the context
func WithConsumer(ctx context.Context, consumerName string) context.Context {
	return context.WithValue(ctx, consumerNameKey, consumerName)
}

// ConsumerFromContext extracts the consumer name from the context
func ConsumerFromContext(ctx context.Context) (string, error) {
	consumerName, ok := ctx.Value(consumerNameKey).(string)
	if !ok || consumerName == "" {
		return "", ErrConsumerNotFound
	}
	return consumerName, nil
}

// ConsumerFromContextOr extracts the consumer name or returns the fallback
func ConsumerFromContextOr(ctx context.Context, fallback string) string {
	if name, err := ConsumerFromContext(ctx); err == nil {
		return name
	}
	return fallback
}

// ErrNoRequestIDInContext is returned when no request ID is found in context
var ErrNoRequestIDInContext = errors.New("no request ID found in context")

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request ID from the context
func RequestIDFromContext(ctx context.Context) (string, error) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	if !ok || requestID == "" {
		return "", ErrNoRequestIDInContext
	}
	return requestID, nil
}
