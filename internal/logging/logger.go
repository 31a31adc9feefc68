// Package logging builds the structured JSON logger shared by the API and the
// stage workers. One object per line:
//
//	{"ts":1700000000000,"level":"INFO","service":"order_api","event":"order_created","correlation_id":"...","aws_request_id":"...",...}
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/correlation"
)

// New returns a logger writing to stdout. Entries below level are dropped.
func New(service, level string) (*zap.Logger, error) {
	return NewWithWriter(service, level, os.Stdout)
}

// NewWithWriter is New with an explicit sink.
func NewWithWriter(service, level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "event",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     epochMillisEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(w), lvl)

	return zap.New(core).With(zap.String("service", service)), nil
}

func epochMillisEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendInt64(t.UnixMilli())
}

type requestIDKey struct{}

// WithRequestID stores a host-provided request id for hosts that are not a
// Lambda invocation (local HTTP server, pollers).
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the Lambda request id when running inside Lambda,
// otherwise whatever WithRequestID stored.
func RequestID(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// With decorates l with the correlation and request ids found in ctx.
func With(ctx context.Context, l *zap.Logger) *zap.Logger {
	return l.With(
		zap.String("correlation_id", correlation.FromContext(ctx)),
		zap.String("aws_request_id", RequestID(ctx)),
	)
}
