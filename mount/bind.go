package mount

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// BindOptions controls how Bind mounts src onto dst.
type BindOptions struct {
	// ReadOnly remounts the bind read-only after the initial bind.
	ReadOnly bool
	// AllowDevices leaves MS_NODEV unset so device nodes under the bind
	// keep working — needed for /dev entries, refused everywhere else.
	AllowDevices bool
	// Recursive re-applies ReadOnly/private propagation to every
	// submount nested under src, per spec.md §4.1's flag-loss quirk.
	Recursive bool
}

// BindError reports which of the four bind steps failed, carrying the
// numeric code spec.md §7 assigns to each (1: bind, 2: make-private,
// 3: remount, 4: submount re-apply).
type BindError struct {
	Code int
	Op   string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %s", e.Op, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// Bind mounts src onto dst using the four-step protocol required because
// plain MS_BIND mounts silently ignore MS_RDONLY/MS_NOSUID/etc: the kernel
// applies those flags only on a later MS_REMOUNT of the same mountpoint.
//
//  1. MS_BIND src onto dst.
//  2. MS_PRIVATE the new mount so its propagation doesn't leak to/from the
//     host mount namespace.
//  3. MS_BIND|MS_REMOUNT with the flags the caller actually wants.
//  4. If Recursive, repeat step 3 for every submount dst picked up from
//     src (a bind of a directory also binds whatever is mounted beneath
//     it), since those submounts keep their own pre-bind flags.
func Bind(src, dst string, opts BindOptions) error {
	bindFlags := uintptr(unix.MS_BIND)
	if opts.Recursive {
		bindFlags |= unix.MS_REC
	}
	if err := unix.Mount(src, dst, "", bindFlags, ""); err != nil {
		return &BindError{Code: 1, Op: "bind", Err: err}
	}

	privateFlags := uintptr(unix.MS_PRIVATE)
	if opts.Recursive {
		privateFlags |= unix.MS_REC
	}
	if err := unix.Mount("", dst, "", privateFlags, ""); err != nil {
		return &BindError{Code: 2, Op: "make-private", Err: err}
	}

	flags := remountFlags(opts)
	if err := unix.Mount("", dst, "", flags, ""); err != nil {
		return &BindError{Code: 3, Op: "remount", Err: err}
	}

	if opts.Recursive {
		subs, err := SubmountsOf(dst)
		if err != nil {
			return &BindError{Code: 4, Op: "enumerate-submounts", Err: err}
		}
		for _, sub := range subs {
			if err := unix.Mount("", sub, "", flags, ""); err != nil {
				return &BindError{Code: 4, Op: "remount-submount " + sub, Err: err}
			}
		}
	}

	return nil
}

func remountFlags(opts BindOptions) uintptr {
	flags := uintptr(unix.MS_BIND | unix.MS_REMOUNT | unix.MS_NOSUID)
	if opts.ReadOnly {
		flags |= unix.MS_RDONLY
	}
	if !opts.AllowDevices {
		flags |= unix.MS_NODEV
	}
	return flags
}
