// Package supervisor implements C6: the three-process model (monitor,
// pid-1, target) that reliably propagates the target's exit status even
// under partial setup failure.
package supervisor

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"sandbox/log"
	"sandbox/procutil"
)

// BlockExitSignals blocks SIGCHLD and SIGTERM on the calling thread. Must
// run before clone, so the race "child exits before the monitor installs
// its signalfd" is impossible (spec.md §4.6, §5).
func BlockExitSignals() error {
	set := &unix.Sigset_t{}
	addSignal(set, unix.SIGCHLD)
	addSignal(set, unix.SIGTERM)
	return unix.PthreadSigmask(unix.SIG_BLOCK, set, nil)
}

// UnblockSignal unblocks a single previously-blocked signal on the calling
// thread — used by pid-1 just before it starts the target, so the target
// inherits the unblocked mask and sees normal signal disposition.
func UnblockSignal(sig unix.Signal) error {
	set := &unix.Sigset_t{}
	addSignal(set, sig)
	return unix.PthreadSigmask(unix.SIG_UNBLOCK, set, nil)
}

func addSignal(set *unix.Sigset_t, sig unix.Signal) {
	set.Val[(sig-1)/64] |= 1 << (uint(sig-1) % 64)
}

// NewExitEventfd creates the eventfd pid-1 writes exit+1 to and the
// monitor reads it back from.
func NewExitEventfd() (fd int, err error) {
	return unix.Eventfd(0, unix.EFD_CLOEXEC)
}

// MonitorLoop runs the monitor half described in spec.md §4.6: it closes
// every fd outside the allowlist, opens a signalfd for SIGCHLD/SIGTERM,
// polls {eventfd, signalfd} forever, and returns the exit status the
// caller's process should itself exit with.
func MonitorLoop(eventfd int, pid1 int, logger log.Logger) (int, error) {
	if err := procutil.CloseUnlistedFds([]int{eventfd, 0, 1, 2}); err != nil {
		logger.Warn("fd hygiene before monitor poll: %s", err)
	}

	mask := &unix.Sigset_t{}
	addSignal(mask, unix.SIGCHLD)
	addSignal(mask, unix.SIGTERM)
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, mask, nil); err != nil {
		return 1, fmt.Errorf("block signals for signalfd: %w", err)
	}

	sigFd, err := unix.Signalfd(-1, mask, unix.SFD_CLOEXEC)
	if err != nil {
		return 1, fmt.Errorf("signalfd: %w", err)
	}
	defer unix.Close(sigFd)

	fds := []unix.PollFd{
		{Fd: int32(eventfd), Events: unix.POLLIN},
		{Fd: int32(sigFd), Events: unix.POLLIN},
	}

	for {
		n, err := unix.Poll(fds, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 1, fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			continue
		}

		if fds[0].Revents&unix.POLLIN != 0 {
			v, err := readEventfd(eventfd)
			if err != nil {
				return 1, fmt.Errorf("read eventfd: %w", err)
			}
			if v > 0 {
				return int(v - 1), nil
			}
			continue
		}

		if fds[1].Revents&unix.POLLIN != 0 {
			info, err := readSignalfd(sigFd)
			if err != nil {
				return 1, fmt.Errorf("read signalfd: %w", err)
			}
			switch unix.Signal(info.Signo) {
			case unix.SIGCHLD:
				return 1, nil
			case unix.SIGTERM:
				_ = unix.Kill(pid1, unix.SIGTERM)
				return 1, nil
			}
		}
	}
}

func readEventfd(fd int) (uint64, error) {
	var buf [8]byte
	n, err := unix.Read(fd, buf[:])
	if err != nil {
		return 0, err
	}
	if n != 8 {
		return 0, fmt.Errorf("short eventfd read: %d bytes", n)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func readSignalfd(fd int) (*unix.SignalfdSiginfo, error) {
	var info unix.SignalfdSiginfo
	buf := (*[unix.SizeofSignalfdSiginfo]byte)(unsafe.Pointer(&info))[:]
	n, err := unix.Read(fd, buf)
	if err != nil {
		return nil, err
	}
	if n != unix.SizeofSignalfdSiginfo {
		return nil, fmt.Errorf("short signalfd read: %d bytes", n)
	}
	return &info, nil
}

// WriteExitEventfd writes WEXITSTATUS(status)+1 to the eventfd as a single
// atomic 8-byte write (the +1 disambiguates from the initial zero value).
// On abnormal termination (killed by a signal) it writes 1+1, so the
// monitor reports exit status 1.
func WriteExitEventfd(eventfd int, ws unix.WaitStatus) error {
	var value uint64
	if ws.Exited() {
		value = uint64(ws.ExitStatus()) + 1
	} else {
		value = 1 + 1
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	n, err := unix.Write(eventfd, buf[:])
	if err != nil {
		return err
	}
	if n != 8 {
		return fmt.Errorf("short eventfd write: %d bytes", n)
	}
	return nil
}

// Init1Loop runs the pid-1 half described in spec.md §4.6: reap in a loop,
// and when the reaped pid is targetPid, report its status on the eventfd.
// Returns when wait() reports ECHILD (the namespace's process table is
// empty).
func Init1Loop(eventfd int, targetPid int) error {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, 0, nil)
		if err != nil {
			if err == unix.ECHILD {
				return nil
			}
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("wait4: %w", err)
		}

		if pid == targetPid {
			if err := WriteExitEventfd(eventfd, ws); err != nil {
				return fmt.Errorf("write exit eventfd: %w", err)
			}
		}
	}
}
