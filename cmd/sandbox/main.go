// Command sandbox is the native variant of the sandbox launcher: it
// constructs a mount/PID/IPC namespace directly via Linux syscalls rather
// than delegating to bwrap.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"

	"golang.org/x/sys/unix"

	"sandbox/capabilities"
	"sandbox/config"
	"sandbox/log"
	"sandbox/nsbuild"
	"sandbox/procutil"
	"sandbox/supervisor"
)

// Env vars this binary uses to coordinate with its own re-exec into the
// new namespace (SANDBOX_ROLE=init). These never reach the target
// command's environment — they're consumed before the exec in the init
// role and never set for the target's process.
const (
	envRole = "SANDBOX_ROLE"
	envCwd  = "SANDBOX_CWD"
	roleInit = "init"
)

func main() {
	logger := log.NewStderrLogger()

	if os.Getenv(envRole) == roleInit {
		os.Exit(runInit(logger))
	}
	os.Exit(runMonitor(logger))
}

// runMonitor is the top-level invocation: it acquires capabilities, scrubs
// argv, blocks the exit signals, clones into a new namespace by
// re-executing itself, and then supervises that child (spec.md §4.6).
func runMonitor(logger log.Logger) int {
	// capabilities.Acquire/SetNoNewPrivs and supervisor.BlockExitSignals all
	// touch thread-local kernel state (capset, prctl, the signal mask); the
	// clone below must run on the same OS thread that set it up, or the Go
	// scheduler can interleave a different thread's state in between.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := capabilities.Acquire(); err != nil {
		log.Fatal("acquire capabilities", err)
		return 1
	}
	if err := capabilities.SetNoNewPrivs(); err != nil {
		log.Fatal("set no new privs", err)
		return 1
	}

	argv := procutil.Scrub(os.Args)

	if _, err := config.Load(os.Args[1:], false); err != nil {
		return reportConfigError(err)
	}
	if err := argv.SetProcessName("sandbox-monitor"); err != nil {
		logger.Warn("set process name: %s", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal("getwd", err)
		return 1
	}

	if err := supervisor.BlockExitSignals(); err != nil {
		log.Fatal("block exit signals", err)
		return 1
	}

	eventfd, err := supervisor.NewExitEventfd()
	if err != nil {
		log.Fatal("create eventfd", err)
		return 1
	}
	defer unix.Close(eventfd)

	selfPath, err := os.Executable()
	if err != nil {
		log.Fatal("resolve own executable path", err)
		return 1
	}

	cmd := exec.Command(selfPath, os.Args[1:]...)
	cmd.Env = append(os.Environ(), envRole+"="+roleInit, envCwd+"="+cwd)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	cmd.ExtraFiles = []*os.File{os.NewFile(uintptr(eventfd), "exit-eventfd")}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWNS | syscall.CLONE_NEWPID | syscall.CLONE_NEWIPC,
	}

	if err := cmd.Start(); err != nil {
		log.Fatal("clone into new namespace", err)
		return 1
	}
	pid1 := cmd.Process.Pid

	status, err := supervisor.MonitorLoop(eventfd, pid1, logger)
	if err != nil {
		logger.Error("monitor loop: %s", err)
	}
	_, _ = cmd.Process.Wait()
	return status
}

// runInit is the pid-1 half: it runs inside the new namespace, builds the
// filesystem (C5), drops capabilities, forks the target, and reaps until
// the namespace's process table is empty (spec.md §4.5, §4.6).
func runInit(logger log.Logger) int {
	// Same constraint as runMonitor: capabilities.DropAll and
	// supervisor.UnblockSignal are thread-local, and the fork into the
	// target (target.Start) must observe their effects on this thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	argv := procutil.Scrub(os.Args)

	cfg, err := config.Load(os.Args[1:], false)
	if err != nil {
		return reportConfigError(err)
	}
	if err := argv.SetProcessName("sandbox-init"); err != nil {
		logger.Warn("set process name: %s", err)
	}

	nsCfg := nsbuild.Config{
		UID:        os.Getuid(),
		GID:        os.Getgid(),
		WorkingDir: os.Getenv(envCwd),
		PrefixDirs: cfg.Prefix,
	}
	if err := nsbuild.Build(nsCfg, logger); err != nil {
		log.Fatal("namespace builder", err)
		return 1
	}

	if err := capabilities.DropAll(); err != nil {
		log.Fatal("drop all capabilities", err)
		return 1
	}

	eventfd := 3 // first (and only) entry of cmd.ExtraFiles

	// Unblock the exit signals on this OS thread immediately before
	// forking the target: the fork inherits the unblocked mask, so the
	// target execs with normal signal disposition (spec.md §4.6).
	if err := supervisor.UnblockSignal(unix.SIGCHLD); err != nil {
		log.Fatal("unblock sigchld", err)
		return 1
	}
	if err := supervisor.UnblockSignal(unix.SIGTERM); err != nil {
		log.Fatal("unblock sigterm", err)
		return 1
	}

	os.Unsetenv(envRole)
	os.Unsetenv(envCwd)

	target := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	target.Stdin, target.Stdout, target.Stderr = os.Stdin, os.Stdout, os.Stderr
	target.Dir = "/app"
	if err := target.Start(); err != nil {
		log.Fatal("exec target", err)
		return 1
	}

	if err := supervisor.Init1Loop(eventfd, target.Process.Pid); err != nil {
		logger.Error("init loop: %s", err)
		return 1
	}
	return 0
}

func reportConfigError(err error) int {
	if errors.Is(err, config.ErrHelp) {
		fmt.Fprintln(os.Stderr, "usage: sandbox [-i id] COMMAND [ARGS...]")
		return 0
	}
	fmt.Fprintln(os.Stderr, err)
	return 1
}
