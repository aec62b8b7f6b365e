// Package util holds small filesystem predicates shared by the bwrap and
// nsbuild packages.
package util

import "os"

// FileExists reports whether path exists (any type).
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// DirExists reports whether path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
