package jobcore

import "go.uber.org/zap"

// Logger is the ambient logging contract for this package: structured,
// key-value based, shaped so that zap, slog, or logrus adapters all satisfy
// it directly.
//
//	logger.Info("job dispatched", "job_id", job.ID, "type", job.TypeName)
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// nopLogger discards everything; it's the Processor's default when no Logger
// is supplied via WithLogger.
type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}

// zapLogger adapts a *zap.SugaredLogger to Logger.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps an existing *zap.Logger as a Logger.
func NewZapLogger(z *zap.Logger) Logger {
	return &zapLogger{sugar: z.Sugar()}
}

// NewProductionLogger builds a Logger backed by zap's production defaults
// (JSON output, info level). It panics if zap's config cannot be built, the
// same as zap.Must would.
func NewProductionLogger() Logger {
	z, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return NewZapLogger(z)
}

func (l *zapLogger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *zapLogger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }
func (l *zapLogger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *zapLogger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
