// Package config resolves settings from CLI flags, environment variables,
// the ~/.next_review INI file, and built-in defaults, in that order of
// precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// DefaultSection is the INI section consulted for every run. A named
// section selected with --config-section overrides it.
const DefaultSection = "DEFAULT"

// Config holds values read from the config file. Nil means the key was not
// present (or was skipped because its value had the wrong type).
type Config struct {
	Host        *string
	Port        *int
	Username    *string
	Email       *string
	Key         *string
	Projects    []string
	NoDownvotes *bool
}

// LoadResult bundles the parsed config with warnings for skipped keys.
type LoadResult struct {
	Config   *Config
	Warnings []string
}

// Load reads the config file. A missing file is not an error and yields an
// empty config. Values of the wrong type produce a warning and are skipped
// so the defaults stay in effect.
func Load(path, section string) (*LoadResult, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &LoadResult{Config: &Config{}}, nil
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	result := &LoadResult{Config: &Config{}}

	sections := []string{DefaultSection}
	if section != "" && file.HasSection(section) {
		sections = append(sections, section)
	}
	for _, name := range sections {
		result.apply(file.Section(name))
	}

	return result, nil
}

// apply overlays one INI section onto the config, later sections winning.
func (lr *LoadResult) apply(sec *ini.Section) {
	cfg := lr.Config

	if sec.HasKey("host") {
		v := sec.Key("host").String()
		cfg.Host = &v
	}
	if sec.HasKey("port") {
		if v, err := sec.Key("port").Int(); err == nil {
			cfg.Port = &v
		} else {
			lr.warnf("option port in config file is of wrong type")
		}
	}
	if sec.HasKey("username") {
		v := sec.Key("username").String()
		cfg.Username = &v
	}
	if sec.HasKey("email") {
		v := sec.Key("email").String()
		cfg.Email = &v
	}
	if sec.HasKey("key") {
		v := sec.Key("key").String()
		cfg.Key = &v
	}
	if sec.HasKey("projects") {
		cfg.Projects = splitProjects(sec.Key("projects").String())
	}
	if sec.HasKey("nodownvotes") {
		if v, err := sec.Key("nodownvotes").Bool(); err == nil {
			cfg.NoDownvotes = &v
		} else {
			lr.warnf("option nodownvotes in config file is of wrong type")
		}
	}
}

func (lr *LoadResult) warnf(format string, args ...any) {
	lr.Warnings = append(lr.Warnings, fmt.Sprintf(format, args...))
}

func splitProjects(raw string) []string {
	var projects []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			projects = append(projects, p)
		}
	}
	return projects
}

// Resolved holds the final configuration values.
type Resolved struct {
	Host        string
	Port        int
	Username    string
	Email       string
	Key         string
	Projects    []string
	NoDownvotes bool
}

// Defaults holds the built-in default values. Username is resolved late,
// from ssh_config or the OS account, when nothing else supplies one.
var Defaults = Resolved{
	Host: "review.opendev.org",
	Port: 29418,
}

// FlagState tracks whether a flag was explicitly set on the command line.
type FlagState struct {
	HostSet        bool
	PortSet        bool
	UsernameSet    bool
	EmailSet       bool
	KeySet         bool
	ProjectsSet    bool
	NoDownvotesSet bool
}

// EnvState captures environment variable values and whether they were set.
type EnvState struct {
	Host           string
	HostSet        bool
	Port           int
	PortSet        bool
	Username       string
	UsernameSet    bool
	Email          string
	EmailSet       bool
	Key            string
	KeySet         bool
	Projects       []string
	ProjectsSet    bool
	NoDownvotes    bool
	NoDownvotesSet bool
}

// LoadEnvState reads the NEXT_REVIEW_* environment variables.
func LoadEnvState() EnvState {
	var state EnvState

	if v := os.Getenv("NEXT_REVIEW_HOST"); v != "" {
		state.Host = v
		state.HostSet = true
	}
	if v := os.Getenv("NEXT_REVIEW_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			state.Port = i
			state.PortSet = true
		}
	}
	if v := os.Getenv("NEXT_REVIEW_USERNAME"); v != "" {
		state.Username = v
		state.UsernameSet = true
	}
	if v := os.Getenv("NEXT_REVIEW_EMAIL"); v != "" {
		state.Email = v
		state.EmailSet = true
	}
	if v := os.Getenv("NEXT_REVIEW_KEY"); v != "" {
		state.Key = v
		state.KeySet = true
	}
	if v := os.Getenv("NEXT_REVIEW_PROJECTS"); v != "" {
		state.Projects = splitProjects(v)
		state.ProjectsSet = true
	}
	if v := os.Getenv("NEXT_REVIEW_NODOWNVOTES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			state.NoDownvotes = b
			state.NoDownvotesSet = true
		}
	}

	return state
}

// Resolve merges config file values with env vars and flags.
// Precedence: flags > env vars > config file > defaults.
func Resolve(cfg *Config, envState EnvState, flagState FlagState, flagValues Resolved) Resolved {
	result := Defaults

	if cfg != nil {
		if cfg.Host != nil {
			result.Host = *cfg.Host
		}
		if cfg.Port != nil {
			result.Port = *cfg.Port
		}
		if cfg.Username != nil {
			result.Username = *cfg.Username
		}
		if cfg.Email != nil {
			result.Email = *cfg.Email
		}
		if cfg.Key != nil {
			result.Key = *cfg.Key
		}
		if cfg.Projects != nil {
			result.Projects = cfg.Projects
		}
		if cfg.NoDownvotes != nil {
			result.NoDownvotes = *cfg.NoDownvotes
		}
	}

	if envState.HostSet {
		result.Host = envState.Host
	}
	if envState.PortSet {
		result.Port = envState.Port
	}
	if envState.UsernameSet {
		result.Username = envState.Username
	}
	if envState.EmailSet {
		result.Email = envState.Email
	}
	if envState.KeySet {
		result.Key = envState.Key
	}
	if envState.ProjectsSet {
		result.Projects = envState.Projects
	}
	if envState.NoDownvotesSet {
		result.NoDownvotes = envState.NoDownvotes
	}

	if flagState.HostSet {
		result.Host = flagValues.Host
	}
	if flagState.PortSet {
		result.Port = flagValues.Port
	}
	if flagState.UsernameSet {
		result.Username = flagValues.Username
	}
	if flagState.EmailSet {
		result.Email = flagValues.Email
	}
	if flagState.KeySet {
		result.Key = flagValues.Key
	}
	if flagState.ProjectsSet {
		result.Projects = flagValues.Projects
	}
	if flagState.NoDownvotesSet {
		result.NoDownvotes = flagValues.NoDownvotes
	}

	return result
}
