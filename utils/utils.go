package utils

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

const (
	INI_FILENAME = "katedit.ini"
	DEFAULT_FILE = "PersData.kat"
)

// Config is what katedit.ini can say.  Everything is optional.
//
//	dir = C:\Users\me\AppData\LocalLow\Everbyte\TextGame
//	file = PersData.kat
//	log_level = debug
//
//	[set]
//	coins = 99999
//	userSettings.energyCap = 500
type Config struct {
	Dir       string
	File      string
	LogLevel  slog.Level
	Overrides []string // path=value, in file order
}

func parse_level(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, errors.Errorf("unknown log_level %q (want debug, info, warn or error)", s)
}

// Load_config reads the ini file at filename.  A missing file is only an error if
// the user asked for it by name (required); otherwise it just means defaults.
func Load_config(filename string, required bool) (*Config, error) {
	c := &Config{File: DEFAULT_FILE, LogLevel: slog.LevelInfo}

	if _, err := os.Stat(filename); err != nil {
		if os.IsNotExist(err) && !required {
			return c, nil
		}
		return nil, errors.Wrap(err, "reading config")
	}

	cfg, err := ini.Load(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %v", filename)
	}

	// default section can be represented as empty string
	def := cfg.Section("")
	c.Dir = def.Key("dir").String()
	c.File = def.Key("file").MustString(DEFAULT_FILE)
	if c.LogLevel, err = parse_level(def.Key("log_level").String()); err != nil {
		return nil, errors.WithMessage(err, filename)
	}

	if cfg.HasSection("set") {
		for _, k := range cfg.Section("set").Keys() {
			c.Overrides = append(c.Overrides, k.Name()+"="+k.Value())
		}
	}
	return c, nil
}

// Get_dir picks the save directory: from the command line, then the ini file, then wherever we are.
func (c *Config) Get_dir(flag string) string {
	if flag != "" {
		return flag
	}
	if c.Dir != "" {
		return c.Dir
	}
	wd, _ := os.Getwd()
	return wd
}

// Save_path turns a file argument into a real path.  Bare file names live in the save
// directory; anything with a directory part is taken as given.  No name at all means
// the configured save file.
func (c *Config) Save_path(flag_dir string, name string) string {
	if name == "" {
		name = c.File
	}
	if filepath.IsAbs(name) || strings.ContainsAny(name, `/\`) {
		return name
	}
	return filepath.Join(c.Get_dir(flag_dir), name)
}

// New_logger makes the stderr logger.  verbose wins over the configured level.
func New_logger(w io.Writer, level slog.Level, verbose bool) *slog.Logger {
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
