// Package config handles loading and managing msgscroll configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/wesm/msgscroll/internal/fileutil"
	"github.com/wesm/msgscroll/internal/scrolltable"
	"github.com/wesm/msgscroll/internal/store"
)

// Config represents the msgscroll configuration.
type Config struct {
	Data DataConfig `toml:"data"`
	View ViewConfig `toml:"view"`

	// Computed paths (not from config file)
	HomeDir    string `toml:"-"`
	ConfigPath string `toml:"-"`
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir string `toml:"data_dir"`
	// Driver is the database/sql driver: "sqlite3" (cgo) or "sqlite" (pure Go).
	Driver string `toml:"driver"`
}

// ViewConfig tunes the scrolling table.
type ViewConfig struct {
	PageSize          int  `toml:"page_size"`     // Max rows per fetch
	InitialFetch      int  `toml:"initial_fetch"` // Rows loaded on view switch
	Prefetch          int  `toml:"prefetch"`      // Rows fetched past each viewport edge
	VelocityWindowMS  int  `toml:"velocity_window_ms"`
	MaxRows           int  `toml:"max_rows"` // Working set bound; 0 disables eviction
	KeepGroupOnSwitch bool `toml:"keep_group_on_switch"`
	SelectFirstOnLoad bool `toml:"select_first_on_load"`
	Optimistic        bool `toml:"optimistic"`
	Strict            bool `toml:"strict"`
}

// DefaultHome returns the default msgscroll home directory.
// Respects MSGSCROLL_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("MSGSCROLL_HOME"); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".msgscroll"
	}
	return filepath.Join(home, ".msgscroll")
}

// NewDefaultConfig returns a configuration with default values rooted at
// DefaultHome.
func NewDefaultConfig() *Config {
	return newConfig(DefaultHome())
}

func newConfig(homeDir string) *Config {
	d := scrolltable.DefaultOptions()
	return &Config{
		HomeDir: homeDir,
		Data: DataConfig{
			DataDir: homeDir,
			Driver:  store.DriverCGo,
		},
		View: ViewConfig{
			PageSize:          d.MaxFetch,
			InitialFetch:      d.InitialFetch,
			Prefetch:          d.Prefetch,
			VelocityWindowMS:  int(d.VelocityWindow / time.Millisecond),
			MaxRows:           d.MaxRows,
			KeepGroupOnSwitch: d.KeepGroupOnSwitch,
			SelectFirstOnLoad: d.SelectFirstOnLoad,
			Optimistic:        d.Optimistic,
			Strict:            d.Strict,
		},
	}
}

// Load reads the configuration.
//
// homeDir overrides DefaultHome when set. If path is empty the config file is
// config.toml in the home directory and may be absent; an explicit path must
// exist, and its directory becomes the home directory unless homeDir is set.
func Load(path, homeDir string) (*Config, error) {
	explicit := path != ""
	switch {
	case homeDir != "":
		homeDir = expandPath(homeDir)
	case explicit:
		abs, err := filepath.Abs(expandPath(path))
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		homeDir = filepath.Dir(abs)
	default:
		homeDir = DefaultHome()
	}
	if path == "" {
		path = filepath.Join(homeDir, "config.toml")
	}
	path = expandPath(path)

	cfg := newConfig(homeDir)
	cfg.ConfigPath = path

	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config: %w", err)
		}
		if explicit {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		// Config file is optional - use defaults if not present
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, decodeError(err)
	}

	cfg.Data.DataDir = expandPath(cfg.Data.DataDir)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// decodeError adds a hint for the common mistake of writing Windows paths
// with backslashes in double-quoted TOML strings.
func decodeError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "invalid escape") || strings.Contains(msg, "hexadecimal digits") {
		return fmt.Errorf("decode config: %w (hint: use forward slashes or single quotes for paths containing backslashes)", err)
	}
	return fmt.Errorf("decode config: %w", err)
}

func (c *Config) validate() error {
	switch c.Data.Driver {
	case store.DriverCGo, store.DriverPureGo:
	default:
		return fmt.Errorf("data.driver: unknown driver %q (want %q or %q)", c.Data.Driver, store.DriverCGo, store.DriverPureGo)
	}
	v := c.View
	if v.PageSize <= 0 {
		return fmt.Errorf("view.page_size must be positive, got %d", v.PageSize)
	}
	if v.InitialFetch < 0 || v.Prefetch < 0 || v.MaxRows < 0 || v.VelocityWindowMS < 0 {
		return errors.New("view: initial_fetch, prefetch, max_rows and velocity_window_ms must not be negative")
	}
	if v.MaxRows > 0 && v.MaxRows < v.PageSize {
		return fmt.Errorf("view.max_rows (%d) must be at least page_size (%d)", v.MaxRows, v.PageSize)
	}
	return nil
}

// DatabasePath returns the path to the SQLite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Data.DataDir, "msgscroll.db")
}

// TableOptions converts the [view] section into scrolling table options.
func (c *Config) TableOptions() scrolltable.Options {
	return scrolltable.Options{
		MaxFetch:          c.View.PageSize,
		InitialFetch:      c.View.InitialFetch,
		Prefetch:          c.View.Prefetch,
		VelocityWindow:    time.Duration(c.View.VelocityWindowMS) * time.Millisecond,
		MaxRows:           c.View.MaxRows,
		KeepGroupOnSwitch: c.View.KeepGroupOnSwitch,
		SelectFirstOnLoad: c.View.SelectFirstOnLoad,
		Optimistic:        c.View.Optimistic,
		Strict:            c.View.Strict,
	}
}

// WriteDefault writes the configuration to ConfigPath unless a file already
// exists there. It reports whether a file was written.
func (c *Config) WriteDefault() (bool, error) {
	if _, err := os.Stat(c.ConfigPath); err == nil {
		return false, nil
	}
	if err := fileutil.MkdirPrivate(filepath.Dir(c.ConfigPath)); err != nil {
		return false, fmt.Errorf("create config dir: %w", err)
	}
	f, err := fileutil.CreatePrivate(c.ConfigPath, os.O_WRONLY|os.O_EXCL)
	if err != nil {
		return false, fmt.Errorf("create config: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		f.Close()
		return false, fmt.Errorf("encode config: %w", err)
	}
	return true, f.Close()
}

// expandPath expands a leading ~ to the user's home directory. ~user is left
// alone.
func expandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	if len(path) > 1 && path[1] != '/' && path[1] != filepath.Separator {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimLeft(path[1:], `/\`))
}
