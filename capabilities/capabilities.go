// Package capabilities implements C4: acquiring the single capability the
// sandbox needs after dropping its setuid bit, and dropping everything
// again once the namespace is built.
package capabilities

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// capSysAdmin is CAP_SYS_ADMIN's bit position in the Linux capability
// bitmask (include/uapi/linux/capability.h).
const capSysAdmin = 21

// linuxCapabilityVersion3 selects the capget/capset ABI that carries 64
// capability bits across two 32-bit words (data[0] bits 0-31, data[1] bits
// 32-63). CAP_SYS_ADMIN fits in data[0] alone.
const linuxCapabilityVersion3 = 0x20080522

// capHeader and capData mirror struct __user_cap_header_struct and
// struct __user_cap_data_struct, the capget(2)/capset(2) ABI.
type capHeader struct {
	version uint32
	pid     int32
}

type capData struct {
	effective   uint32
	permitted   uint32
	inheritable uint32
}

// Acquire implements spec.md §4.4's acquire(): if running setuid-root
// (effective uid differs from real uid), it sets PR_SET_KEEPCAPS so the
// following setuid doesn't clear the capability sets, drops to the real
// uid, then capsets down to exactly {CAP_SYS_ADMIN} in effective+permitted
// with an empty inheritable set.
func Acquire() error {
	euid := os.Geteuid()
	ruid := os.Getuid()

	if euid != ruid {
		if err := unix.Prctl(unix.PR_SET_KEEPCAPS, 1, 0, 0, 0); err != nil {
			return fmt.Errorf("prctl(PR_SET_KEEPCAPS): %w", err)
		}
		if err := unix.Setuid(ruid); err != nil {
			return fmt.Errorf("setuid(%d): %w", ruid, err)
		}
	}

	hdr := capHeader{version: linuxCapabilityVersion3, pid: 0}
	data := [2]capData{
		{effective: 1 << capSysAdmin, permitted: 1 << capSysAdmin, inheritable: 0},
		{},
	}
	if _, _, errno := unix.RawSyscall(unix.SYS_CAPSET, uintptr(unsafe.Pointer(&hdr)), uintptr(unsafe.Pointer(&data[0])), 0); errno != 0 {
		return fmt.Errorf("capset(CAP_SYS_ADMIN): %w", errno)
	}
	return nil
}

// SetNoNewPrivs sets PR_SET_NO_NEW_PRIVS, required immediately after
// Acquire so a later execve cannot regain ambient privilege (spec.md §4.4).
func SetNoNewPrivs() error {
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("prctl(PR_SET_NO_NEW_PRIVS): %w", err)
	}
	return nil
}

// DropAll capsets effective, permitted and inheritable to the empty set.
// Must be called after pivot_root and before forking to the target child
// (spec.md §4.4, §5).
func DropAll() error {
	hdr := capHeader{version: linuxCapabilityVersion3, pid: 0}
	data := [2]capData{{}, {}}
	if _, _, errno := unix.RawSyscall(unix.SYS_CAPSET, uintptr(unsafe.Pointer(&hdr)), uintptr(unsafe.Pointer(&data[0])), 0); errno != 0 {
		return fmt.Errorf("capset(drop-all): %w", errno)
	}
	return nil
}

// Effective reads back the calling process's current effective capability
// set, for tests and diagnostics (spec.md §8: "the target has 0 effective
// capabilities").
func Effective() (uint64, error) {
	hdr := capHeader{version: linuxCapabilityVersion3, pid: 0}
	var data [2]capData
	if _, _, errno := unix.RawSyscall(unix.SYS_CAPGET, uintptr(unsafe.Pointer(&hdr)), uintptr(unsafe.Pointer(&data[0])), 0); errno != 0 {
		return 0, fmt.Errorf("capget: %w", errno)
	}
	return uint64(data[0].effective) | uint64(data[1].effective)<<32, nil
}
