package nsbuild

import (
	"reflect"
	"testing"

	"sandbox/mount"
)

func TestIntermediateDirs(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"opt", []string{"opt"}},
		{"opt/te", []string{"opt", "opt/te"}},
		{"a/b/c", []string{"a", "a/b", "a/b/c"}},
	}
	for _, tt := range tests {
		if got := intermediateDirs(tt.path); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("intermediateDirs(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestPrefixMountNameStripsLeadingSlash(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/opt/te", "opt/te"},
		{"opt/te", "opt/te"},
		{"/", ""},
	}
	for _, tt := range tests {
		if got := prefixMountName(tt.in); got != tt.want {
			t.Errorf("prefixMountName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMainRecipeIsStructurallyValid(t *testing.T) {
	cfg := Config{UID: 1000, GID: 1000, WorkingDir: "/home/user/project", PrefixDirs: []string{"/opt/a", "/opt/b"}}
	entries := MainRecipe(cfg)

	if err := mount.Validate(entries); err != nil {
		t.Fatalf("MainRecipe produced an invalid recipe: %v", err)
	}

	var sawProcDir, sawProcMount bool
	for i, e := range entries {
		if e.Kind == mount.KindDirectory && e.Name == "proc" {
			sawProcDir = true
		}
		if e.Kind == mount.KindFSMount && e.Name == "proc" {
			if !sawProcDir {
				t.Fatalf("entry %d mounts proc before its directory is created", i)
			}
			sawProcMount = true
		}
	}
	if !sawProcMount {
		t.Fatal("expected a proc fs-mount entry")
	}
}

func TestMainRecipeBindsPrefixDirsUnderMatchingNames(t *testing.T) {
	cfg := Config{PrefixDirs: []string{"/opt/te"}}
	entries := MainRecipe(cfg)

	var found bool
	for _, e := range entries {
		if e.Kind == mount.KindBindReadonly && e.Name == "opt/te" && e.Data == "/opt/te" {
			found = true
		}
	}
	if !found {
		t.Error("expected a bind-readonly entry for opt/te")
	}
}
