// Package nsbuild implements C5: the namespace builder. It runs inside the
// freshly cloned mount+PID+IPC namespace and turns an empty tmpfs into the
// sandbox's root filesystem, ending in a pivot_root.
package nsbuild

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"sandbox/log"
	"sandbox/mount"
)

// NewRoot is the well-known, persistent mountpoint the tmpfs root is
// mounted over. Build creates it on the host filesystem if it is missing;
// an existing directory is reused.
const NewRoot = "/srv/thingengine/sandbox-root"

// Config carries everything the builder needs that isn't baked into the
// static recipe: the caller's identity and the paths it asked to expose.
type Config struct {
	UID        int
	GID        int
	WorkingDir string   // caller's pre-clone cwd, bound onto /app
	PrefixDirs []string // THINGENGINE_PREFIX entries, bound read-only
}

// Build runs the full C5 sequence: slave /, mount the tmpfs root, run the
// main recipe, bind the working directory, run mount_extra_root_dirs, then
// pivot_root and detach the old root. The caller must hold CAP_SYS_ADMIN
// and run this before capabilities.DropAll.
func Build(cfg Config, logger log.Logger) error {
	oldUmask := unix.Umask(0)
	defer unix.Umask(oldUmask)

	if err := unix.Mount("/", "/", "", unix.MS_SLAVE|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("make / slave: %w", err)
	}

	if err := os.MkdirAll(NewRoot, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", NewRoot, err)
	}
	if err := unix.Mount("", NewRoot, "tmpfs", unix.MS_NODEV|unix.MS_NOSUID, ""); err != nil {
		return fmt.Errorf("mount tmpfs root: %w", err)
	}

	if err := os.Chdir(NewRoot); err != nil {
		return fmt.Errorf("chdir %s: %w", NewRoot, err)
	}

	recipe := MainRecipe(cfg)
	if err := mount.Run(recipe, cfg.UID, cfg.GID); err != nil {
		return fmt.Errorf("main recipe: %w", err)
	}

	if err := mount.Bind(cfg.WorkingDir, "app", mount.BindOptions{}); err != nil {
		return fmt.Errorf("bind working directory onto app: %w", err)
	}

	if err := runPostRecipe(cfg); err != nil {
		return fmt.Errorf("post recipe: %w", err)
	}

	if err := mountExtraRootDirs(logger); err != nil {
		return fmt.Errorf("mount extra root dirs: %w", err)
	}

	if err := os.Mkdir(".oldroot", 0755); err != nil {
		return fmt.Errorf("mkdir .oldroot: %w", err)
	}
	if err := unix.PivotRoot(".", ".oldroot"); err != nil {
		return fmt.Errorf("pivot_root: %w", err)
	}
	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("chdir /: %w", err)
	}

	if err := unix.Mount("", "/.oldroot", "", unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("make .oldroot private: %w", err)
	}
	if err := unix.Unmount("/.oldroot", unix.MNT_DETACH); err != nil {
		return fmt.Errorf("detach .oldroot: %w", err)
	}

	return nil
}

// runPostRecipe is the post-recipe slot from spec.md §4.5 step 7, reserved
// for files that must exist after binds but before mount_extra_root_dirs
// and pivot_root. It is intentionally empty.
//
// Do not add real filesystem entries here casually: anything placed in
// this slot runs after every bind in MainRecipe has already landed, which
// makes ordering bugs here much harder to spot than in the main recipe.
func runPostRecipe(cfg Config) error {
	var entries []mount.Entry
	return mount.Run(entries, cfg.UID, cfg.GID)
}

// mountExtraRootDirs recreates every host root entry not in
// mount.ExtraRootBlocklist inside the new root: directories as read-only
// recursive binds, symlinks by reading and recreating the link. At this
// point in the sequence the process has chdir'd into NewRoot but has not
// yet pivoted, so "/" still refers to the host's root filesystem.
func mountExtraRootDirs(logger log.Logger) error {
	hostRoot := "/"
	entries, err := os.ReadDir(hostRoot)
	if err != nil {
		return fmt.Errorf("readdir %s: %w", hostRoot, err)
	}

	blocked := make(map[string]bool, len(mount.ExtraRootBlocklist))
	for _, name := range mount.ExtraRootBlocklist {
		blocked[name] = true
	}

	for _, entry := range entries {
		name := entry.Name()
		if blocked[name] {
			continue
		}

		info, err := os.Lstat(filepath.Join(hostRoot, name))
		if err != nil {
			logger.Warn("mount_extra_root_dirs: lstat %s: %s", name, err)
			continue
		}

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(filepath.Join(hostRoot, name))
			if err != nil {
				logger.Warn("mount_extra_root_dirs: readlink %s: %s", name, err)
				continue
			}
			if err := os.Symlink(target, name); err != nil {
				logger.Warn("mount_extra_root_dirs: symlink %s: %s", name, err)
			}

		case info.IsDir():
			if err := os.Mkdir(name, info.Mode().Perm()); err != nil && !os.IsExist(err) {
				logger.Warn("mount_extra_root_dirs: mkdir %s: %s", name, err)
				continue
			}
			if err := mount.Bind(filepath.Join(hostRoot, name), name, mount.BindOptions{
				ReadOnly:  true,
				Recursive: true,
			}); err != nil {
				logger.Warn("mount_extra_root_dirs: bind %s: %s", name, err)
			}
		}
	}

	return nil
}
