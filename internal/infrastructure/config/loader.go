package config

import (
	"os"
	"sync"
)

// ConfigFileEnv names the environment variable holding the config file path.
const ConfigFileEnv = "CONFIG_FILE"

// Logger is the subset of the application logger the loader reports to.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

// Loader memoises a single configuration load.
//
// The first call to Load reads the file (or synthesises defaults); every
// later call returns the identical *Config and error without touching the
// filesystem again. There is no hot reload.
//
// Thread Safety: Load is safe for concurrent use.
type Loader struct {
	path string
	log  Logger

	once sync.Once
	cfg  *Config
	err  error
}

// NewLoader creates a loader for the given path. log may be nil.
func NewLoader(path string, log Logger) *Loader {
	return &Loader{path: path, log: log}
}

// PathFromEnv returns the config file path from CONFIG_FILE.
func PathFromEnv() string {
	return os.Getenv(ConfigFileEnv)
}

// Path returns the config file path the loader was created with.
func (l *Loader) Path() string {
	return l.path
}

// Load returns the configuration, constructing it on first call.
func (l *Loader) Load() (*Config, error) {
	l.once.Do(func() {
		if !fileExists(l.path) {
			cwd, _ := os.Getwd() //nolint:errcheck // only used in the log line
			l.warn("config file not found, using defaults", "path", l.path, "cwd", cwd)
			l.cfg = Default()
			return
		}

		l.info("loading config", "path", l.path)
		l.cfg, l.err = Load(l.path)
		if l.err != nil {
			return
		}
		l.info("configuration loaded", "path", l.path, "database", l.cfg.Database.Type)
	})
	return l.cfg, l.err
}

func (l *Loader) info(msg string, kv ...any) {
	if l.log != nil {
		l.log.Info(msg, kv...)
	}
}

func (l *Loader) warn(msg string, kv ...any) {
	if l.log != nil {
		l.log.Warn(msg, kv...)
	}
}
