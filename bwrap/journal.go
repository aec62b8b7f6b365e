package bwrap

import (
	"fmt"
	"os"
	"os/exec"

	"sandbox/log"
)

// RedirectToJournal wires cmd's stdout/stderr to the systemd journal under
// identifier thingengine-child-<userID>, stdout at LOG_INFO and stderr at
// LOG_WARNING — the split the original used two separate
// sd_journal_stream_fd calls for. If the local journal isn't reachable,
// cmd's stdout/stderr are set to this process's own os.Stdout/os.Stderr.
func RedirectToJournal(cmd *exec.Cmd, userID string) {
	identifier := fmt.Sprintf("thingengine-child-%s", userID)

	if out, ok := log.NewLineStreamer(identifier, log.PriorityInfo); ok {
		cmd.Stdout = out
	} else {
		cmd.Stdout = os.Stdout
	}

	if errOut, ok := log.NewLineStreamer(identifier, log.PriorityWarning); ok {
		cmd.Stderr = errOut
	} else {
		cmd.Stderr = os.Stderr
	}
}
