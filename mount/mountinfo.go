// Package mount implements the sandbox's filesystem layer: parsing
// /proc/self/mountinfo (C1), the bind-mount primitive that works around the
// kernel's habit of dropping per-mount flags on a plain bind (C2), and the
// declarative filesystem table engine that turns a recipe into real mounts,
// directories, symlinks and device nodes (C3).
package mount

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Recognized per-mount option flags, bitwise-OR'd into Info.Flags. Options
// in mountinfo that are not in this set are ignored, per spec.md §3.
const (
	FlagRO         = unix.MS_RDONLY
	FlagNoSuid     = unix.MS_NOSUID
	FlagNoDev      = unix.MS_NODEV
	FlagNoExec     = unix.MS_NOEXEC
	FlagNoAtime    = unix.MS_NOATIME
	FlagNoDiratime = unix.MS_NODIRATIME
	FlagRelatime   = unix.MS_RELATIME
)

var optionFlags = map[string]uintptr{
	"ro":         FlagRO,
	"nosuid":     FlagNoSuid,
	"nodev":      FlagNoDev,
	"noexec":     FlagNoExec,
	"noatime":    FlagNoAtime,
	"nodiratime": FlagNoDiratime,
	"relatime":   FlagRelatime,
}

// Info is one parsed mountinfo line, limited to the fields this sandbox
// needs: the mountpoint and its recognized option flags.
type Info struct {
	Mountpoint string
	Flags      uintptr
}

// parseLine interprets one /proc/self/mountinfo line. Per spec.md §3, only
// the first seven whitespace-separated tokens matter: token 5 (index 4) is
// the octal-escaped mountpoint, token 6 (index 5) is the comma-separated
// option list. The remaining tokens (optional fields, filesystem type,
// source, superblock options) are not needed by mount_flags_of or
// submounts_of and are ignored.
func parseLine(line string) (Info, bool) {
	fields := strings.Fields(line)
	if len(fields) < 6 {
		return Info{}, false
	}

	mountpoint := unescapeOctal(fields[4])

	var flags uintptr
	for _, opt := range strings.Split(fields[5], ",") {
		if bit, ok := optionFlags[opt]; ok {
			flags |= bit
		}
	}

	return Info{Mountpoint: mountpoint, Flags: flags}, true
}

// unescapeOctal decodes \NNN three-digit octal escapes (used by the kernel
// for space, tab, backslash and newline in mountinfo paths), leaving any
// other backslash untouched.
func unescapeOctal(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if n, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// escapeOctal is the inverse of unescapeOctal, used only by tests to verify
// the round-trip law in spec.md §8.
func escapeOctal(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\\', '\n':
			fmt.Fprintf(&b, "\\%03o", s[i])
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// parseAll reads and parses every line of /proc/self/mountinfo.
func parseAll() ([]Info, error) {
	f, err := os.Open("/proc/self/mountinfo")
	if err != nil {
		return nil, fmt.Errorf("open mountinfo: %w", err)
	}
	defer f.Close()

	var infos []Info
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if info, ok := parseLine(scanner.Text()); ok {
			infos = append(infos, info)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read mountinfo: %w", err)
	}
	return infos, nil
}

// canonicalize resolves path to an absolute, cleaned form, matching
// mountinfo's own absolute mountpoints.
func canonicalize(path string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getwd: %w", err)
	}
	return filepath.Clean(filepath.Join(cwd, path)), nil
}

// MountFlagsOf returns the recognized flags of the mount at path, or 0 if
// path is not itself a mountpoint — the caller then has no extra flags to
// preserve on a subsequent bind/remount.
func MountFlagsOf(path string) (uintptr, error) {
	target, err := canonicalize(path)
	if err != nil {
		return 0, err
	}

	infos, err := parseAll()
	if err != nil {
		return 0, err
	}

	for _, info := range infos {
		if info.Mountpoint == target {
			return info.Flags, nil
		}
	}
	return 0, nil
}

// SubmountsOf returns every mountpoint strictly nested under prefix (prefix
// itself excluded), in the order mountinfo lists them — the order the
// caller must re-apply flags in, per spec.md §4.1.
func SubmountsOf(prefix string) ([]string, error) {
	target, err := canonicalize(prefix)
	if err != nil {
		return nil, err
	}
	if target != "/" {
		target = strings.TrimSuffix(target, "/")
	}

	infos, err := parseAll()
	if err != nil {
		return nil, err
	}

	var subs []string
	for _, info := range infos {
		if info.Mountpoint == target {
			continue
		}
		if isUnder(info.Mountpoint, target) {
			subs = append(subs, info.Mountpoint)
		}
	}
	return subs, nil
}

func isUnder(path, prefix string) bool {
	if prefix == "/" {
		return strings.HasPrefix(path, "/") && path != "/"
	}
	return strings.HasPrefix(path, prefix+"/")
}
