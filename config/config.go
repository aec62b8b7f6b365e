// Package config resolves the sandbox's configuration: the environment
// variables spec.md §6 requires and the handful of CLI flags, into a
// single struct the rest of the program reads once at startup.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

// Config is the resolved set of inputs the sandbox needs to build or
// describe a jail. Missing required fields are reported by Load, not by
// the caller poking at zero values.
type Config struct {
	// Command is the COMMAND [ARGS...] positional tail.
	Command []string

	// Prefix is THINGENGINE_PREFIX, already split on ':'.
	Prefix []string

	// UserID is THINGENGINE_USER_ID, used only by the wrapper variant's
	// journald identifier.
	UserID string

	// DisableSystemd mirrors THINGENGINE_DISABLE_SYSTEMD (wrapper only).
	DisableSystemd bool

	// CI mirrors the CI env var (wrapper only): dump argv before exec.
	CI bool

	// PlaceholderID is the accepted-and-ignored -i argument.
	PlaceholderID string
}

// RequireUserID marks whether the caller needs THINGENGINE_USER_ID
// resolved (the wrapper variant) — the native variant does not consume it
// (spec.md §6).
type RequireUserID bool

// Load parses argv (excluding the program name) and the process
// environment into a Config. It returns an error (spec.md §7's
// precondition-error class) whenever a required input is missing, so the
// caller can print it and exit 1 without its own validation logic. Errors
// about the argument vector wrap ErrUsage; a missing environment variable
// returns a plain error.
func Load(argv []string, requireUserID bool) (*Config, error) {
	fs := pflag.NewFlagSet("sandbox", pflag.ContinueOnError)
	fs.SetInterspersed(false) // getopt-style: stop at the first positional (the COMMAND)

	placeholderID := fs.StringP("i", "i", "", "reserved, accepted and ignored")
	help := fs.BoolP("h", "h", false, "print usage")

	if err := fs.Parse(argv); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUsage, err)
	}
	if *help {
		return nil, ErrHelp
	}

	command := fs.Args()
	if len(command) == 0 {
		return nil, fmt.Errorf("%w: at least one positional COMMAND is required", ErrUsage)
	}

	prefix := os.Getenv("THINGENGINE_PREFIX")
	if prefix == "" {
		return nil, fmt.Errorf("missing THINGENGINE_PREFIX in the environment")
	}

	cfg := &Config{
		Command:        command,
		Prefix:         strings.Split(prefix, ":"),
		UserID:         os.Getenv("THINGENGINE_USER_ID"),
		DisableSystemd: os.Getenv("THINGENGINE_DISABLE_SYSTEMD") != "",
		CI:             os.Getenv("CI") != "",
		PlaceholderID:  *placeholderID,
	}

	if requireUserID && cfg.UserID == "" {
		return nil, fmt.Errorf("missing THINGENGINE_USER_ID in the environment")
	}

	return cfg, nil
}

// ErrUsage marks a precondition error: a bad or missing argument. Callers
// print the message and exit 1 (spec.md §7).
var ErrUsage = fmt.Errorf("usage error")

// ErrHelp marks a -h invocation: usage was requested, not malformed.
var ErrHelp = fmt.Errorf("usage requested")
