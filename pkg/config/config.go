package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/muesli/termenv"
	"github.com/spf13/viper"
)

// Config contains runtime configuration resolved from (in priority order):
//  1. Explicit CLI flags (bound onto the viper instance by the cmd layer)
//  2. Environment variables (BNRUN_*)
//  3. Config file (.bnrun.yaml in the working directory or $HOME, or an explicit path)
//  4. Defaults
//
// This package does not read script definitions; it only locates them (Dir).
type Config struct {
	// Dir is the scripts directory name or path. Relative names are searched upward from the
	// working directory.
	Dir string

	// Shell runs each step as `<Shell> -c <command>`.
	Shell string

	// SelfName is the command prefix that marks a nested script invocation.
	SelfName string

	// Skip holds glob patterns matched against step script names and command text.
	Skip []string

	// Color is one of "auto", "always", "never".
	Color string

	Debug   bool
	Verbose bool

	// MaxDepth bounds nested script invocations.
	MaxDepth int

	// CommandTimeout, if > 0, applies to each step.
	CommandTimeout time.Duration

	// WatchDebounce coalesces bursts of file events in watch mode.
	WatchDebounce time.Duration

	// ConfigFile is the config file that was read, if any.
	ConfigFile string
}

// Keys are the viper keys (and the lower-case suffixes of the BNRUN_* env variables).
const (
	KeyDir            = "dir"
	KeyShell          = "shell"
	KeySelf           = "self"
	KeySkip           = "skip"
	KeyColor          = "color"
	KeyDebug          = "debug"
	KeyVerbose        = "verbose"
	KeyMaxDepth       = "max_depth"
	KeyCommandTimeout = "timeout"
	KeyWatchDebounce  = "watch_debounce"
)

// EnvPrefix is prepended to every key to form its env variable (BNRUN_MAX_DEPTH).
const EnvPrefix = "BNRUN"

// EnvKeys groups supported env variables.
type EnvKeys struct {
	Dir            string
	Shell          string
	Self           string
	Skip           string
	Color          string
	Debug          string
	Verbose        string
	MaxDepth       string
	CommandTimeout string
	WatchDebounce  string
}

// DefaultEnvKeys returns the canonical env variable names.
func DefaultEnvKeys() EnvKeys {
	return EnvKeys{
		Dir:            envKey(KeyDir),
		Shell:          envKey(KeyShell),
		Self:           envKey(KeySelf),
		Skip:           envKey(KeySkip),
		Color:          envKey(KeyColor),
		Debug:          envKey(KeyDebug),
		Verbose:        envKey(KeyVerbose),
		MaxDepth:       envKey(KeyMaxDepth),
		CommandTimeout: envKey(KeyCommandTimeout),
		WatchDebounce:  envKey(KeyWatchDebounce),
	}
}

func envKey(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(key)
}

// ConfigFileNames are looked up, in order, in the working directory and then in $HOME.
var ConfigFileNames = []string{".bnrun.yaml", ".bnrun.yml"}

// New returns a viper instance with defaults and env lookup configured.
func New() *viper.Viper {
	def := defaultConfig()

	v := viper.New()
	v.SetDefault(KeyDir, def.Dir)
	v.SetDefault(KeyShell, def.Shell)
	v.SetDefault(KeySelf, def.SelfName)
	v.SetDefault(KeySkip, []string{})
	v.SetDefault(KeyColor, def.Color)
	v.SetDefault(KeyDebug, def.Debug)
	v.SetDefault(KeyVerbose, def.Verbose)
	v.SetDefault(KeyMaxDepth, def.MaxDepth)
	v.SetDefault(KeyCommandTimeout, def.CommandTimeout)
	v.SetDefault(KeyWatchDebounce, def.WatchDebounce)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Resolve builds a Config from defaults, the default config file locations and env.
func Resolve() (Config, error) {
	return Load(New(), "")
}

// Load reads configFile (or the first default config file found) into v and builds a Config.
// A missing default config file is not an error; a missing explicit one is.
func Load(v *viper.Viper, configFile string) (Config, error) {
	configFile = strings.TrimSpace(configFile)
	if configFile == "" {
		wd, _ := os.Getwd()
		home, _ := os.UserHomeDir()
		configFile = FindConfigFile(wd, home)
	} else {
		configFile = expandHome(configFile)
		if _, err := os.Stat(configFile); err != nil {
			return Config{}, fmt.Errorf("config file: %w", err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg, err := fromViper(v)
	if err != nil {
		return Config{}, err
	}
	cfg.ConfigFile = v.ConfigFileUsed()
	return cfg, nil
}

// FindConfigFile returns the first existing config file under dir, then under home, or "".
func FindConfigFile(dir, home string) string {
	for _, base := range []string{dir, home} {
		if strings.TrimSpace(base) == "" {
			continue
		}
		for _, name := range ConfigFileNames {
			p := filepath.Join(base, name)
			if st, err := os.Stat(p); err == nil && !st.IsDir() {
				return p
			}
		}
	}
	return ""
}

func fromViper(v *viper.Viper) (Config, error) {
	def := defaultConfig()
	cfg := Config{
		Dir:      strings.TrimSpace(v.GetString(KeyDir)),
		Shell:    strings.TrimSpace(v.GetString(KeyShell)),
		SelfName: strings.TrimSpace(v.GetString(KeySelf)),
		Color:    strings.ToLower(strings.TrimSpace(v.GetString(KeyColor))),
		Debug:    boolValue(v.Get(KeyDebug), def.Debug),
		Verbose:  boolValue(v.Get(KeyVerbose), def.Verbose),
	}

	skip, err := stringsValue(v.Get(KeySkip))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", KeySkip, err)
	}
	cfg.Skip = skip

	depth := strings.TrimSpace(v.GetString(KeyMaxDepth))
	n, err := strconv.Atoi(depth)
	if err != nil || n < 0 {
		return Config{}, fmt.Errorf("%s: must be a non-negative integer, got %q", KeyMaxDepth, depth)
	}
	cfg.MaxDepth = n

	if cfg.CommandTimeout, err = durationValue(v, KeyCommandTimeout); err != nil {
		return Config{}, err
	}
	if cfg.WatchDebounce, err = durationValue(v, KeyWatchDebounce); err != nil {
		return Config{}, err
	}

	return cfg.withDerivedDefaults()
}

func defaultConfig() Config {
	return Config{
		Dir:            ".bnrun",
		Shell:          "sh",
		SelfName:       "bnrun",
		Color:          "auto",
		MaxDepth:       64,
		CommandTimeout: 0,
		WatchDebounce:  200 * time.Millisecond,
	}
}

func (c Config) withDerivedDefaults() (Config, error) {
	out := c
	def := defaultConfig()
	if out.Dir == "" {
		out.Dir = def.Dir
	}
	out.Dir = expandHome(out.Dir)
	if out.Shell == "" {
		out.Shell = def.Shell
	}
	if out.SelfName == "" {
		out.SelfName = def.SelfName
	}
	if out.Color == "" {
		out.Color = def.Color
	}
	switch out.Color {
	case "auto", "always", "never":
	default:
		return Config{}, fmt.Errorf("%s: must be auto, always or never, got %q", KeyColor, out.Color)
	}
	if out.MaxDepth == 0 {
		out.MaxDepth = def.MaxDepth
	}
	if out.WatchDebounce <= 0 {
		out.WatchDebounce = def.WatchDebounce
	}
	return out, nil
}

// UseColor decides whether output should be styled. NO_COLOR and CLICOLOR=0 disable "auto".
func (c Config) UseColor(isTTY bool) bool {
	switch c.Color {
	case "always":
		return true
	case "never":
		return false
	default:
		return isTTY && !termenv.EnvNoColor()
	}
}

// Helpers

// stringsValue accepts a list (config file, bound flags) or a comma-separated string (env).
func stringsValue(raw any) ([]string, error) {
	switch x := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return splitCommaList(x), nil
	case []string:
		return trimList(x), nil
	case []any:
		out := make([]string, 0, len(x))
		for i, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("[%d]: expected string, got %T", i, item)
			}
			out = append(out, s)
		}
		return trimList(out), nil
	default:
		return nil, fmt.Errorf("expected a list of strings, got %T", raw)
	}
}

func durationValue(v *viper.Viper, key string) (time.Duration, error) {
	switch x := v.Get(key).(type) {
	case time.Duration:
		return x, nil
	case int:
		return time.Duration(x) * time.Millisecond, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, nil
		}
		// Bare numbers are milliseconds.
		if n, err := strconv.Atoi(s); err == nil {
			return time.Duration(n) * time.Millisecond, nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("%s: expected a duration, got %T", key, x)
	}
}

func boolValue(raw any, def bool) bool {
	switch x := raw.(type) {
	case bool:
		return x
	case string:
		return parseBool(x, def)
	default:
		return def
	}
}

// splitCommaList splits on commas outside {...} groups, so "echo *,{lint,test}" keeps the brace
// alternation intact.
func splitCommaList(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return trimList(parts)
}

func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func expandHome(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return p
	}
	if p == "~" {
		if home, err := os.UserHomeDir(); err == nil && home != "" {
			return home
		}
		return p
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil && home != "" {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}

func parseBool(v string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

// ErrUnknownKey is returned by Lookup for keys outside the documented set.
var ErrUnknownKey = errors.New("unknown config key")

// Keys lists every supported key in display order.
func Keys() []string {
	return []string{KeyDir, KeyShell, KeySelf, KeySkip, KeyColor, KeyDebug, KeyVerbose, KeyMaxDepth, KeyCommandTimeout, KeyWatchDebounce}
}

// Lookup returns the effective value of key formatted for display.
func (c Config) Lookup(key string) (string, error) {
	switch key {
	case KeyDir:
		return c.Dir, nil
	case KeyShell:
		return c.Shell, nil
	case KeySelf:
		return c.SelfName, nil
	case KeySkip:
		return strings.Join(c.Skip, ","), nil
	case KeyColor:
		return c.Color, nil
	case KeyDebug:
		return strconv.FormatBool(c.Debug), nil
	case KeyVerbose:
		return strconv.FormatBool(c.Verbose), nil
	case KeyMaxDepth:
		return strconv.Itoa(c.MaxDepth), nil
	case KeyCommandTimeout:
		return c.CommandTimeout.String(), nil
	case KeyWatchDebounce:
		return c.WatchDebounce.String(), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
}
