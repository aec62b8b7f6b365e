// Package procutil implements C8: fd hygiene and argv scrubbing, the two
// small pre-exec hardening steps that don't belong to any one process in
// the supervisor triad.
package procutil

import (
	"fmt"
	"os"
	"strconv"
	"unsafe"

	"golang.org/x/sys/unix"
)

// CloseUnlistedFds closes every fd above 2 not present in allowlist. It
// prefers iterating /proc/self/fd (spec.md §4.8: "it only closes actually
// open fds"); if that's unreadable it falls back to a bounded scan of
// 0..sysconf(OPEN_MAX).
func CloseUnlistedFds(allowlist []int) error {
	allowed := make(map[int]bool, len(allowlist))
	for _, fd := range allowlist {
		allowed[fd] = true
	}

	if entries, err := os.ReadDir("/proc/self/fd"); err == nil {
		for _, entry := range entries {
			fd, err := strconv.Atoi(entry.Name())
			if err != nil {
				continue
			}
			closeIfUnlisted(fd, allowed)
		}
		return nil
	}

	limit, err := openMax()
	if err != nil {
		return fmt.Errorf("determine OPEN_MAX: %w", err)
	}
	for fd := 0; fd < limit; fd++ {
		closeIfUnlisted(fd, allowed)
	}
	return nil
}

func closeIfUnlisted(fd int, allowed map[int]bool) {
	if fd <= 2 || allowed[fd] {
		return
	}
	_ = unix.Close(fd)
}

func openMax() (int, error) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlimit); err != nil {
		return 0, err
	}
	return int(rlimit.Cur), nil
}

// ScrubbedArgv is a Go-owned copy of the process's argument vector.
type ScrubbedArgv struct {
	args []string
}

// Scrub copies argv into a fresh Go-owned slice, mirroring spec.md §4.8's
// clean_argv: in the C original this matters because the original argv
// memory region gets overwritten later for process-name spoofing and must
// not be read through stale pointers afterward. Go's os.Args is already a
// copy of that region made at process start, so this primarily documents
// the boundary and gives SetProcessName a stable value to report against.
func Scrub(argv []string) *ScrubbedArgv {
	args := make([]string, len(argv))
	copy(args, argv)
	return &ScrubbedArgv{args: args}
}

// Args returns the scrubbed argument vector.
func (s *ScrubbedArgv) Args() []string {
	return s.args
}

// SetProcessName sets the calling thread's kernel name (the comm value
// shown by ps -o comm) via PR_SET_NAME; the kernel truncates it to 15
// bytes. The original argv region, and so /proc/<pid>/cmdline, is not
// rewritten.
func (s *ScrubbedArgv) SetProcessName(name string) error {
	b := append([]byte(name), 0)
	return unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&b[0])), 0, 0, 0)
}
