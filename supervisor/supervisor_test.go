package supervisor

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestAddSignalSetsExpectedBit(t *testing.T) {
	set := &unix.Sigset_t{}
	addSignal(set, unix.SIGCHLD)

	word := (unix.SIGCHLD - 1) / 64
	bit := uint(unix.SIGCHLD-1) % 64
	if set.Val[word]&(1<<bit) == 0 {
		t.Fatal("expected SIGCHLD's bit to be set")
	}
}

func TestWriteThenReadExitEventfd(t *testing.T) {
	fd, err := NewExitEventfd()
	if err != nil {
		t.Fatalf("NewExitEventfd() error = %v", err)
	}
	defer unix.Close(fd)

	ws := unix.WaitStatus(42 << 8) // exited with status 42

	if err := WriteExitEventfd(fd, ws); err != nil {
		t.Fatalf("WriteExitEventfd() error = %v", err)
	}

	got, err := readEventfd(fd)
	if err != nil {
		t.Fatalf("readEventfd() error = %v", err)
	}
	// +1 encoding: status 42 is reported as 43.
	if got != 43 {
		t.Errorf("readEventfd() = %d, want 43 (42+1)", got)
	}
}

func TestWriteExitEventfdAbnormalTerminationReportsOne(t *testing.T) {
	fd, err := NewExitEventfd()
	if err != nil {
		t.Fatalf("NewExitEventfd() error = %v", err)
	}
	defer unix.Close(fd)

	ws := unix.WaitStatus(unix.SIGKILL) // signaled, not exited

	if err := WriteExitEventfd(fd, ws); err != nil {
		t.Fatalf("WriteExitEventfd() error = %v", err)
	}

	got, err := readEventfd(fd)
	if err != nil {
		t.Fatalf("readEventfd() error = %v", err)
	}
	if got-1 != 1 {
		t.Errorf("reported exit status = %d, want 1 (abnormal termination)", got-1)
	}
}
