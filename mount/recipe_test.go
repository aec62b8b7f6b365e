package mount

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateRejectsOrphanedIfLastFailed(t *testing.T) {
	entries := []Entry{
		{Kind: KindDirectory, Name: "a", Mode: 0755},
		{Kind: KindDirectory, Name: "b", Mode: 0755, Flags: EntryFlags{IfLastFailed: true}},
	}
	if err := Validate(entries); err == nil {
		t.Fatal("expected error for if-last-failed not following a non-fatal entry")
	}
}

func TestValidateAcceptsWellFormedPair(t *testing.T) {
	entries := []Entry{
		{Kind: KindBind, Name: "a", Data: "/src", Flags: EntryFlags{NonFatal: true}},
		{Kind: KindDirectory, Name: "b", Mode: 0755, Flags: EntryFlags{IfLastFailed: true}},
	}
	if err := Validate(entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func withTempRoot(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(cwd) })
	return dir
}

func TestRunDirectoryRegularFileSymlink(t *testing.T) {
	root := withTempRoot(t)

	entries := []Entry{
		{Kind: KindDirectory, Name: "app", Mode: 0755},
		{Kind: KindRegularFile, Name: "app/marker", Mode: 0644},
		{Kind: KindSymlink, Name: "link", Data: "app/marker"},
	}

	if err := Run(entries, 1000, 1000); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if info, err := os.Stat(filepath.Join(root, "app")); err != nil || !info.IsDir() {
		t.Errorf("expected app/ directory to exist")
	}
	if _, err := os.Stat(filepath.Join(root, "app/marker")); err != nil {
		t.Errorf("expected app/marker to exist: %v", err)
	}
	target, err := os.Readlink(filepath.Join(root, "link"))
	if err != nil || target != "app/marker" {
		t.Errorf("Readlink() = %q, %v, want app/marker", target, err)
	}
}

func TestRunDirectoryFatalOnEEXIST(t *testing.T) {
	withTempRoot(t)

	entries := []Entry{
		{Kind: KindDirectory, Name: "dup", Mode: 0755},
		{Kind: KindDirectory, Name: "dup", Mode: 0755},
	}

	if err := Run(entries, 1000, 1000); err == nil {
		t.Fatal("expected fatal error on duplicate directory creation")
	}
}

func TestRunConditionalSymlinkSkipsWhenTargetMissing(t *testing.T) {
	withTempRoot(t)

	entries := []Entry{
		{Kind: KindConditionalSymlink, Name: "maybe-link", Data: "usr/definitely-not-here-xyz"},
	}

	if err := Run(entries, 1000, 1000); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := os.Lstat("maybe-link"); err == nil {
		t.Error("expected symlink to be skipped, but it was created")
	}
}

// TestRunNonFatalBindThenIfLastFailed exercises the two-step recovery
// protocol from spec.md §4.3/§8. A bind of a nonexistent source run without
// CAP_SYS_ADMIN fails at step 1 (code 1) regardless of the test environment's
// privileges, so this is portable without root.
func TestRunNonFatalBindThenIfLastFailed(t *testing.T) {
	withTempRoot(t)

	entries := []Entry{
		{Kind: KindBind, Name: "opt", Data: "/no-such-source-xyz", Flags: EntryFlags{NonFatal: true}},
		{Kind: KindDirectory, Name: "opt-fallback", Mode: 0755, Flags: EntryFlags{IfLastFailed: true}},
	}

	if err := Run(entries, 1000, 1000); err != nil {
		t.Fatalf("Run() error = %v, want nil (non-fatal code-1 failure recovered)", err)
	}
	if _, err := os.Stat("opt-fallback"); err != nil {
		t.Errorf("expected compensating entry to run: %v", err)
	}
}

func TestRunFatalBindWithoutNonFatalAborts(t *testing.T) {
	withTempRoot(t)

	entries := []Entry{
		{Kind: KindBind, Name: "opt", Data: "/no-such-source-xyz"},
	}

	if err := Run(entries, 1000, 1000); err == nil {
		t.Fatal("expected fatal error when bind fails without non-fatal flag")
	}
}
