package observability

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the JSON console logger. When endpoint is set, records are
// also shipped over OTLP through the zap bridge.
func NewLogger(ctx context.Context, endpoint string) (*zap.Logger, ShutdownFunc, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.Lock(os.Stdout),
		zap.InfoLevel,
	)

	opts := []zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service.name", ServiceName)),
	}

	if endpoint == "" {
		return zap.New(consoleCore, opts...), noopShutdown, nil
	}

	shutdown, err := setupLogging(ctx, endpoint)
	if err != nil {
		logger := zap.New(consoleCore, opts...)
		logger.Warn("otlp log export disabled", zap.Error(err))
		return logger, noopShutdown, nil
	}

	otelCore := otelzap.NewCore("reservation",
		otelzap.WithLoggerProvider(global.GetLoggerProvider()),
	)
	return zap.New(zapcore.NewTee(otelCore, consoleCore), opts...), shutdown, nil
}

func setupLogging(ctx context.Context, endpoint string) (ShutdownFunc, error) {
	host, err := parseOTLPEndpoint(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse otlp endpoint: %w", err)
	}

	res, err := newResource()
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlploghttp.New(ctx,
		otlploghttp.WithEndpoint(host),
		otlploghttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("otlp log exporter: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(provider)
	return provider.Shutdown, nil
}
