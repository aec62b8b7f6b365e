// Command sandboxbwrap is the wrapper variant of the sandbox launcher: it
// assembles a bwrap(1) invocation and execs it, rather than building the
// namespace itself (spec.md §4.7).
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"sandbox/bwrap"
	"sandbox/config"
	"sandbox/log"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:], true)
	if err != nil {
		if errors.Is(err, config.ErrHelp) {
			fmt.Fprintln(os.Stderr, "usage: sandboxbwrap [-i id] COMMAND [ARGS...]")
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal("getwd", err)
		return 1
	}

	args := bwrap.BuildArgs(bwrap.Options{
		WorkingDir: cwd,
		PrefixDirs: cfg.Prefix,
		Command:    cfg.Command,
		InfoFD:     true,
	})

	if cfg.CI {
		fmt.Fprint(os.Stderr, bwrap.Dump(args))
	}

	bwrapPath, err := exec.LookPath(args[0])
	if err != nil {
		log.Fatal("locate bwrap", err)
		return 1
	}

	infoRead, infoWrite, err := os.Pipe()
	if err != nil {
		log.Fatal("open info-fd pipe", err)
		return 1
	}

	cmd := exec.Command(bwrapPath, args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	cmd.ExtraFiles = []*os.File{infoWrite} // becomes fd 3, matching --info-fd 3 above

	if !cfg.DisableSystemd {
		bwrap.RedirectToJournal(cmd, cfg.UserID)
	}

	infoDone := make(chan struct{})
	go func() {
		_, _ = io.ReadAll(infoRead)
		close(infoDone)
	}()

	runErr := cmd.Start()
	infoWrite.Close()
	if runErr == nil {
		runErr = cmd.Wait()
	}
	<-infoDone
	infoRead.Close()

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				return ws.ExitStatus()
			}
		}
		log.Fatal("run bwrap", runErr)
		return 1
	}
	return 0
}
