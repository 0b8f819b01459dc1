package log

import (
	"log"
	"os"
	"path/filepath"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/mattn/go-colorable"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger replaces the global zap logger with a JSON file core and a colored console
// core. Errors also go to Sentry when a DSN is given.
func NewLogger(path string, debug bool, sentryDsn string, app string) {
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	pe := zap.NewProductionEncoderConfig()
	pe.EncodeTime = zapcore.ISO8601TimeEncoder
	pe.MessageKey = "message"
	pe.TimeKey = "time"

	cores := make([]zapcore.Core, 0, 2)
	if path != "" {
		f, err := openLogFile(path)
		if err != nil {
			log.Fatal(err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(pe), zapcore.AddSync(f), level))
	}

	pe.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(pe), zapcore.AddSync(colorable.NewColorableStdout()), level))

	logger := zap.New(zapcore.NewTee(cores...)).With(zap.String("app", app))
	defer logger.Sync()

	if sentryDsn != "" {
		logger = modifyToSentryLogger(logger, sentryDsn, app)
	}

	zap.ReplaceGlobals(logger)
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

func modifyToSentryLogger(log *zap.Logger, dsn string, app string) *zap.Logger {
	cfg := zapsentry.Configuration{
		Level:             zapcore.ErrorLevel,
		EnableBreadcrumbs: true,
		BreadcrumbLevel:   zapcore.InfoLevel,
		Tags: map[string]string{
			"component": app,
		},
	}
	core, err := zapsentry.NewCore(cfg, zapsentry.NewSentryClientFromDSN(dsn))

	// breadcrumbs need an explicit scope
	log = log.With(zapsentry.NewScope())

	// on error NewCore returns a noop core, so attaching it is safe
	if err != nil {
		log.Warn("failed to init zap", zap.Error(err))
	}
	return zapsentry.AttachCoreToLogger(core, log)
}
