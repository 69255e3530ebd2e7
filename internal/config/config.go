package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jask/canvaspaint/internal/paint"
)

// Config holds application configuration.
type Config struct {
	Remote    RemoteConfig    `mapstructure:"remote"`
	Paint     PaintConfig     `mapstructure:"paint"`
	Challenge ChallengeConfig `mapstructure:"challenge"`
	Image     ImageConfig     `mapstructure:"image"`
	Palette   PaletteConfig   `mapstructure:"palette"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
}

// RemoteConfig describes the canvas backend.
type RemoteConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	CanvasPath string        `mapstructure:"canvas_path"`
	CookieName string        `mapstructure:"cookie_name"`
	Session    string        `mapstructure:"session"`
	UserAgent  string        `mapstructure:"user_agent"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// PaintConfig holds the pixel filter and pacing.
type PaintConfig struct {
	TransparencyThreshold int           `mapstructure:"transparency_threshold"`
	WhiteThreshold        int           `mapstructure:"white_threshold"`
	PaceMin               time.Duration `mapstructure:"pace_min"`
	PaceMax               time.Duration `mapstructure:"pace_max"`
	CooldownDefault       time.Duration `mapstructure:"cooldown_default"`
	CooldownJitterMin     time.Duration `mapstructure:"cooldown_jitter_min"`
	CooldownJitterMax     time.Duration `mapstructure:"cooldown_jitter_max"`
	TransientBackoffMin   time.Duration `mapstructure:"transient_backoff_min"`
	TransientBackoffMax   time.Duration `mapstructure:"transient_backoff_max"`
	LogInterval           int           `mapstructure:"log_interval"`
}

// ChallengeConfig tunes recovery polling.
type ChallengeConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BackoffMax   time.Duration `mapstructure:"backoff_max"`
	JitterMin    time.Duration `mapstructure:"jitter_min"`
	JitterMax    time.Duration `mapstructure:"jitter_max"`
	ResumeDelay  time.Duration `mapstructure:"resume_delay"`
}

// ImageConfig bounds resize requests.
type ImageConfig struct {
	MinSide int `mapstructure:"min_side"`
	MaxSide int `mapstructure:"max_side"`
}

// PaletteConfig points at an optional palette file and the colours to skip.
type PaletteConfig struct {
	Path    string   `mapstructure:"path"`
	Exclude []string `mapstructure:"exclude"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds log output settings.
type LogConfig struct {
	Path  string `mapstructure:"path"`
	Level string `mapstructure:"level"`
}

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"base-url":    "remote.base_url",
	"session":     "remote.session",
	"palette":     "palette.path",
	"exclude":     "palette.exclude",
	"db":          "database.path",
	"log-file":    "log.path",
	"log-level":   "log.level",
	"transparent": "paint.transparency_threshold",
	"white":       "paint.white_threshold",
}

// Path is the config file location. $CANVASPAINT_CONFIG wins.
func Path() string {
	if p := os.Getenv("CANVASPAINT_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "canvaspaint", "config.toml")
}

func dataDir() string {
	return filepath.Join(os.Getenv("HOME"), ".local", "share", "canvaspaint")
}

func setDefaults(v *viper.Viper) {
	t := paint.DefaultTiming()

	v.SetDefault("remote.base_url", "https://backend.wplace.live")
	v.SetDefault("remote.canvas_path", "/s0")
	v.SetDefault("remote.cookie_name", "j")
	v.SetDefault("remote.session", "")
	v.SetDefault("remote.user_agent", "canvaspaint/1.0")
	v.SetDefault("remote.timeout", 15*time.Second)

	v.SetDefault("paint.transparency_threshold", paint.DefaultTransparencyThreshold)
	v.SetDefault("paint.white_threshold", paint.DefaultWhiteThreshold)
	v.SetDefault("paint.pace_min", t.PaceMin)
	v.SetDefault("paint.pace_max", t.PaceMax)
	v.SetDefault("paint.cooldown_default", t.CooldownDefault)
	v.SetDefault("paint.cooldown_jitter_min", t.CooldownJitterMin)
	v.SetDefault("paint.cooldown_jitter_max", t.CooldownJitterMax)
	v.SetDefault("paint.transient_backoff_min", t.TransientMin)
	v.SetDefault("paint.transient_backoff_max", t.TransientMax)
	v.SetDefault("paint.log_interval", 10)

	v.SetDefault("challenge.poll_interval", t.ChallengePoll)
	v.SetDefault("challenge.backoff_max", t.BackoffMax)
	v.SetDefault("challenge.jitter_min", t.BackoffJitterMin)
	v.SetDefault("challenge.jitter_max", t.BackoffJitterMax)
	v.SetDefault("challenge.resume_delay", t.ResumeDelay)

	v.SetDefault("image.min_side", 10)
	v.SetDefault("image.max_side", 500)

	v.SetDefault("palette.path", "")
	v.SetDefault("palette.exclude", []string{"0", "5"})

	v.SetDefault("database.path", filepath.Join(dataDir(), "canvaspaint.db"))

	v.SetDefault("log.path", filepath.Join(dataDir(), "canvaspaint.log"))
	v.SetDefault("log.level", "info")
}

// Load reads configuration from file, env and flags. Env var overrides use
// prefix CANVASPAINT_. flags may be nil; only the flags listed in flagKeys
// are bound.
func Load(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")
	cfgPath := os.Getenv("CANVASPAINT_CONFIG")
	if flags != nil {
		if f := flags.Lookup("config"); f != nil && f.Changed {
			cfgPath = f.Value.String()
		}
	}
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "canvaspaint"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("CANVASPAINT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := flagKeys[f.Name]
			if key == "" || bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(key, f)
		})
		if bindErr != nil {
			return Config{}, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	// a missing file is fine, a broken one is not
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Save writes cfg to Path(), creating the config directory if needed. The
// session token is left out; it belongs in the secrets store.
func Save(cfg Config) error {
	path := Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("remote.base_url", cfg.Remote.BaseURL)
	v.Set("remote.canvas_path", cfg.Remote.CanvasPath)
	v.Set("remote.cookie_name", cfg.Remote.CookieName)
	v.Set("remote.user_agent", cfg.Remote.UserAgent)
	v.Set("remote.timeout", cfg.Remote.Timeout.String())

	v.Set("paint.transparency_threshold", cfg.Paint.TransparencyThreshold)
	v.Set("paint.white_threshold", cfg.Paint.WhiteThreshold)
	v.Set("paint.pace_min", cfg.Paint.PaceMin.String())
	v.Set("paint.pace_max", cfg.Paint.PaceMax.String())
	v.Set("paint.cooldown_default", cfg.Paint.CooldownDefault.String())
	v.Set("paint.cooldown_jitter_min", cfg.Paint.CooldownJitterMin.String())
	v.Set("paint.cooldown_jitter_max", cfg.Paint.CooldownJitterMax.String())
	v.Set("paint.transient_backoff_min", cfg.Paint.TransientBackoffMin.String())
	v.Set("paint.transient_backoff_max", cfg.Paint.TransientBackoffMax.String())
	v.Set("paint.log_interval", cfg.Paint.LogInterval)

	v.Set("challenge.poll_interval", cfg.Challenge.PollInterval.String())
	v.Set("challenge.backoff_max", cfg.Challenge.BackoffMax.String())
	v.Set("challenge.jitter_min", cfg.Challenge.JitterMin.String())
	v.Set("challenge.jitter_max", cfg.Challenge.JitterMax.String())
	v.Set("challenge.resume_delay", cfg.Challenge.ResumeDelay.String())

	v.Set("image.min_side", cfg.Image.MinSide)
	v.Set("image.max_side", cfg.Image.MaxSide)
	v.Set("palette.path", cfg.Palette.Path)
	v.Set("palette.exclude", cfg.Palette.Exclude)
	v.Set("database.path", cfg.Database.Path)
	v.Set("log.path", cfg.Log.Path)
	v.Set("log.level", cfg.Log.Level)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Remote.BaseURL == "" {
		errs = append(errs, errors.New("remote.base_url is empty"))
	}
	if c.Remote.CookieName == "" {
		errs = append(errs, errors.New("remote.cookie_name is empty"))
	}
	for name, v := range map[string]int{
		"paint.transparency_threshold": c.Paint.TransparencyThreshold,
		"paint.white_threshold":        c.Paint.WhiteThreshold,
	} {
		if v < 0 || v > 255 {
			errs = append(errs, fmt.Errorf("%s must be within 0..255, got %d", name, v))
		}
	}
	if c.Image.MinSide < 1 || c.Image.MaxSide < c.Image.MinSide {
		errs = append(errs, fmt.Errorf("image sides must satisfy 1 <= min <= max, got %d..%d", c.Image.MinSide, c.Image.MaxSide))
	}
	if err := c.Timing().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Timing converts the pacing sections into engine timings.
func (c Config) Timing() paint.Timing {
	return paint.Timing{
		PaceMin:           c.Paint.PaceMin,
		PaceMax:           c.Paint.PaceMax,
		CooldownDefault:   c.Paint.CooldownDefault,
		CooldownJitterMin: c.Paint.CooldownJitterMin,
		CooldownJitterMax: c.Paint.CooldownJitterMax,
		TransientMin:      c.Paint.TransientBackoffMin,
		TransientMax:      c.Paint.TransientBackoffMax,
		ChallengePoll:     c.Challenge.PollInterval,
		BackoffMax:        c.Challenge.BackoffMax,
		BackoffJitterMin:  c.Challenge.JitterMin,
		BackoffJitterMax:  c.Challenge.JitterMax,
		ResumeDelay:       c.Challenge.ResumeDelay,
	}
}

// Filter returns the pixel filter. Call Validate first.
func (c Config) Filter() paint.Filter {
	return paint.Filter{
		TransparencyThreshold: uint8(c.Paint.TransparencyThreshold),
		WhiteThreshold:        uint8(c.Paint.WhiteThreshold),
	}
}
