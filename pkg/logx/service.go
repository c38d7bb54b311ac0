package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultLogFile = "./opsadmin.log"

type FileConfig struct {
	Enabled bool
	Path    string
}

// Config selects the sinks. With nothing enabled the service logs to the console.
type Config struct {
	Level   string
	Console bool
	JSON    bool
	File    FileConfig
}

// Service owns the root logger and the log file. Loggers handed out by it pick up
// level and sink changes made by Apply.
type Service struct {
	mu   sync.RWMutex
	cfg  Config
	zl   zerolog.Logger
	file *os.File
	path string
}

func New(cfg Config) (*Service, Logger) {
	setGlobals()
	s := &Service{zl: zerolog.Nop()}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Service) current() zerolog.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zl
}

// Apply swaps in a new root logger. The log file is reopened only when its path changes;
// a file that cannot be opened is reported on stderr and skipped.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.fileFor(cfg.File)
	if err != nil {
		fmt.Fprintf(Stderr(), "logx: %v\n", err)
	}

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, newConsoleWriter(Stdout()))
	}
	if cfg.JSON {
		sinks = append(sinks, Stdout())
	}
	if file != nil {
		sinks = append(sinks, file)
	}
	if len(sinks) == 0 {
		sinks = append(sinks, newConsoleWriter(Stdout()))
	}

	var w io.Writer = sinks[0]
	if len(sinks) > 1 {
		w = zerolog.MultiLevelWriter(sinks...)
	}

	if s.file != nil && s.file != file {
		_ = s.file.Close()
	}
	s.file = file
	if file == nil {
		s.path = ""
	}
	s.cfg = cfg
	s.zl = newRoot(zerolog.SyncWriter(w), ParseLevel(cfg.Level, LevelInfo))
}

// fileFor returns the file to write to. Must hold s.mu.
func (s *Service) fileFor(fc FileConfig) (*os.File, error) {
	if !fc.Enabled {
		return nil, nil
	}
	path := strings.TrimSpace(fc.Path)
	if path == "" {
		path = defaultLogFile
	}
	if s.file != nil && s.path == path {
		return s.file, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	s.path = path
	return f, nil
}

// Close closes the log file. Loggers keep working and drop to a no-op writer.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zl = zerolog.Nop()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file, s.path = nil, ""
	return err
}

func newRoot(w io.Writer, level Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func newConsoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
}

func Stdout() io.Writer { return os.Stdout }
func Stderr() io.Writer { return os.Stderr }

var globalsOnce sync.Once

func setGlobals() {
	globalsOnce.Do(func() {
		zerolog.ErrorFieldName = "err"
		zerolog.TimeFieldFormat = time.RFC3339Nano
	})
}
