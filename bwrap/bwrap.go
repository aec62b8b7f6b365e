// Package bwrap implements C7: the wrapper variant, which builds an argv
// for the external bwrap (bubblewrap) helper instead of constructing the
// namespace itself.
package bwrap

import (
	"fmt"
	"strings"

	"sandbox/mount"
	"sandbox/util"
)

// Options carries everything BuildArgs needs to assemble the bwrap
// invocation: the caller's working directory, its THINGENGINE_PREFIX
// entries, and the command to run inside the jail.
type Options struct {
	WorkingDir string
	PrefixDirs []string
	Command    []string
	InfoFD     bool // append --info-fd 3
}

// BuildArgs assembles the bwrap argv in the exact order
// original_source/sandbox/sandbox.c does: base flags, /usr-family
// read-only binds, the API filesystem, the working directory bind, the
// prefix binds, the /etc whitelist, then the child's own argv.
func BuildArgs(opts Options) []string {
	var args []string
	args = append(args, "bwrap")
	args = addBaseArgs(args, opts.InfoFD)
	args = addUsrDirs(args)
	args = addAPIFs(args)
	args = addThingengineDirs(args, opts.WorkingDir, opts.PrefixDirs)
	args = addEtc(args)
	args = append(args, opts.Command...)
	return args
}

func addBaseArgs(args []string, infoFD bool) []string {
	args = append(args, "--unshare-ipc", "--unshare-pid", "--new-session")
	if infoFD {
		args = append(args, "--info-fd", "3")
	}
	return args
}

// usrDirs mirrors add_usr_dirs: read-only binds of the host's library and
// binary trees, including /opt in this (newer) variant.
var usrDirs = []string{"/usr", "/lib", "/lib64", "/bin", "/sbin", "/opt"}

func addUsrDirs(args []string) []string {
	for _, dir := range usrDirs {
		args = append(args, "--ro-bind", dir, dir)
	}
	return args
}

// sysSubtrees mirrors add_api_fs's --ro-bind /sys/* lines.
var sysSubtrees = []string{"/sys/block", "/sys/bus", "/sys/class", "/sys/dev", "/sys/devices"}

func addAPIFs(args []string) []string {
	args = append(args, "--proc", "/proc")
	args = append(args, "--dir", "/tmp", "--dir", "/var/tmp", "--dir", "/run")
	args = append(args, "--symlink", "../run", "/var/run")
	args = append(args, "--dev", "/dev")
	for _, dir := range sysSubtrees {
		args = append(args, "--ro-bind", dir, dir)
	}
	return args
}

func addThingengineDirs(args []string, workingDir string, prefixDirs []string) []string {
	args = append(args, "--chdir", "/app", "--bind", workingDir, "/app")
	for _, p := range prefixDirs {
		args = append(args, "--ro-bind", p, p)
	}
	return args
}

// addEtc mirrors add_etc: each whitelisted /etc entry is bound read-only
// only if it exists on the host (spec.md §6).
func addEtc(args []string) []string {
	for _, name := range mount.EtcWhitelist {
		path := "/etc/" + name
		if util.FileExists(path) {
			args = append(args, "--ro-bind", path, path)
		}
	}
	return args
}

// SplitPrefix splits a colon-separated THINGENGINE_PREFIX value into its
// component host paths.
func SplitPrefix(prefix string) []string {
	if prefix == "" {
		return nil
	}
	return strings.Split(prefix, ":")
}

// Dump writes the assembled argv as a single space-joined line, matching
// strv_dump — used in CI mode (spec.md §4.7, §6).
func Dump(args []string) string {
	return fmt.Sprintf("%s\n", strings.Join(args, " "))
}
