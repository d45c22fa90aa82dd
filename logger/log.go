package logger

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger *zap.Logger
var log *zap.SugaredLogger
var initLock sync.Mutex
var initialised bool

func init() {
	initialise(zapcore.InfoLevel, "console", nil, false)
}

type Config struct {
	Format     string `help:"Format to write log lines in" enum:"console,json" default:"console"`
	Level      string `help:"Lowest log level that will be emitted" enum:"debug,info,warn,error" default:"info"`
	File       string `help:"Also write log lines to this file, rolled by size" default:""`
	MaxSizeMB  int    `name:"max-size-mb" help:"Size in megabytes at which the log file is rolled" default:"100"`
	MaxBackups int    `help:"Number of rolled log files to keep" default:"7"`
	MaxAgeDays int    `help:"Days to keep rolled log files" default:"30"`
}

func (cfg *Config) Configure() error {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.Level))); err != nil {
		return err
	}
	format := strings.ToLower(strings.TrimSpace(cfg.Format))
	if format != "console" && format != "json" {
		return errors.New("log-format must be one of 'console' or 'json'")
	}
	var file *lumberjack.Logger
	if cfg.File != "" {
		file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
	}
	initialise(level, format, file, true)
	return nil
}

var DebugEnabled = false

func initialise(level zapcore.Level, encoding string, file *lumberjack.Logger, override bool) {
	initLock.Lock()
	defer initLock.Unlock()
	if initialised && !override {
		return
	}
	logger = CreateLogger(level, encoding, file)
	log = logger.Sugar()

	// Cache as simple bool to avoid atomics - we never change it after initialisation so this is ok
	DebugEnabled = log.Desugar().Core().Enabled(zap.DebugLevel)

	initialised = true
}

// CreateLogger builds a logger writing to stdout, and to file as well when it is not nil.
func CreateLogger(level zapcore.Level, encoding string, file *lumberjack.Logger) *zap.Logger {
	encoderConf := zapcore.EncoderConfig{
		// Keys can be anything except the empty string.
		TimeKey:        "T",
		LevelKey:       "L",
		NameKey:        "N",
		CallerKey:      "C",
		MessageKey:     "M",
		StacktraceKey:  "S",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     timeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	var encoder zapcore.Encoder
	if encoding == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConf)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConf)
	}
	sink := zapcore.AddSync(os.Stdout)
	if file != nil {
		sink = zapcore.NewMultiWriteSyncer(sink, zapcore.AddSync(file))
	}
	core := zapcore.NewCore(encoder, sink, zap.NewAtomicLevelAt(level))
	return zap.New(core)
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05.999999"))
}

// Named returns a child logger, used by components that want their name on every line.
func Named(name string) *zap.SugaredLogger {
	initLock.Lock()
	defer initLock.Unlock()
	return log.Named(name)
}

func Sync() {
	_ = logger.Sync()
}

func Info(args ...interface{}) {
	log.Info(args...)
}

func Infof(format string, args ...interface{}) {
	log.Infof(format, args...)
}

func Debug(args ...interface{}) {
	if !DebugEnabled {
		return
	}
	log.Debug(args...)
}

func Debugf(format string, args ...interface{}) {
	if !DebugEnabled {
		return
	}
	log.Debugf(format, args...)
}

func Warn(args ...interface{}) {
	log.Warn(args...)
}

func Warnf(format string, args ...interface{}) {
	log.Warnf(format, args...)
}

func Error(args ...interface{}) {
	log.Error(args...)
}

func Errorf(format string, args ...interface{}) {
	log.Errorf(format, args...)
}

func Fatal(args ...interface{}) {
	log.Fatal(args...)
}

func Fatalf(format string, args ...interface{}) {
	log.Fatalf(format, args...)
}
