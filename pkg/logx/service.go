package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	timeFormat     = "2006-01-02T15:04:05.000Z07:00"
	defaultLogFile = "./padcast.log"
	defaultDirMode = 0o755
)

// stderr is where console output goes; stdout may carry ingest data.
var stderr io.Writer = os.Stderr

func init() {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = timeFormat
}

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

// FileConfig controls the JSON file sink. Zero rotation values fall back to
// lumberjack's defaults (100 MB, keep everything).
type FileConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Service owns the sinks. Apply rebuilds them; Loggers obtained from the
// Service pick up the new root on their next call.
type Service struct {
	mu   sync.Mutex
	file *lumberjack.Logger
	root atomic.Pointer[zerolog.Logger]
}

// New applies cfg and returns the Service with a root Logger bound to it.
func New(cfg Config) (*Service, Logger) {
	s := &Service{}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

// Apply swaps level and sinks. With neither sink enabled, output falls back
// to the console so nothing is silently lost.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.file
	s.file = nil

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, consoleWriter(stderr))
	}
	if cfg.File.Enabled {
		if lj, err := openFile(cfg.File); err != nil {
			fmt.Fprintf(os.Stderr, "logx: %v\n", err)
		} else {
			s.file = lj
			sinks = append(sinks, zerolog.SyncWriter(lj))
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, consoleWriter(stderr))
	}

	zl := newRoot(zerolog.MultiLevelWriter(sinks...), parseLevel(cfg.Level, LevelInfo))
	s.root.Store(&zl)

	if old != nil {
		_ = old.Close()
	}
}

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

func openFile(fc FileConfig) (*lumberjack.Logger, error) {
	path := strings.TrimSpace(fc.Path)
	if path == "" {
		path = defaultLogFile
	}
	if err := os.MkdirAll(filepath.Dir(path), defaultDirMode); err != nil {
		return nil, fmt.Errorf("create log dir for %q: %w", path, err)
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    fc.MaxSizeMB,
		MaxBackups: fc.MaxBackups,
		MaxAge:     fc.MaxAgeDays,
		Compress:   fc.Compress,
	}, nil
}

func newRoot(w io.Writer, lvl Level) zerolog.Logger {
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: timeFormat,
		FormatCaller: func(i any) string {
			s, _ := i.(string)
			return s
		},
	}
}
