package otelhelper

import (
	"errors"

	"github.com/leadflow/leadflow/pkg/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetError marks the span failed. Engine errors also record their code and
// recoverability.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	var engineErr *models.EngineError
	if errors.As(err, &engineErr) {
		attrs = append(attrs,
			attribute.String(ErrorCodeKey, string(engineErr.Code)),
			attribute.Bool(RecoverableKey, engineErr.Recoverable),
		)
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent("error_occurred", trace.WithAttributes(
		attrs...,
	))
}
