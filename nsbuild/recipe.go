package nsbuild

import (
	"sandbox/mount"
	"sandbox/util"
)

// systemBinds are the host directory trees exposed read-only inside every
// sandbox, mirroring the wrapper variant's --ro-bind set (spec.md §4.7) so
// the native and wrapper variants satisfy the same testable invariant
// (spec.md §8: "/usr /lib /lib64 /bin /sbin = read-only").
var systemBinds = []string{"usr", "lib", "lib64", "bin", "sbin", "opt"}

// sysSubtrees are the /sys subtrees bound read-only, matching the
// wrapper's --ro-bind /sys/{block,bus,class,dev,devices} (spec.md §4.7).
var sysSubtrees = []string{"sys/block", "sys/bus", "sys/class", "sys/dev", "sys/devices"}

// MainRecipe builds the concrete recipe for spec.md §4.5 step 5: the
// virtual filesystems from the static mount table, read-only system
// binds, fresh scratch directories, the /etc whitelist, and the caller's
// prefix directories. Entries are appended in dependency order; nothing
// here is re-sorted at run time.
func MainRecipe(cfg Config) []mount.Entry {
	var entries []mount.Entry

	entries = append(entries,
		mount.Entry{Kind: mount.KindDirectory, Name: "dev", Mode: 0755},
		mount.Entry{Kind: mount.KindDirectory, Name: "proc", Mode: 0555},
		mount.Entry{Kind: mount.KindFSMount, Name: "proc"},
		mount.Entry{Kind: mount.KindDirectory, Name: "dev/pts", Mode: 0755},
		mount.Entry{Kind: mount.KindFSMount, Name: "dev/pts"},
		mount.Entry{Kind: mount.KindDirectory, Name: "dev/shm", Mode: 01777},
		mount.Entry{Kind: mount.KindShmMount, Name: "dev/shm"},
	)

	for _, name := range systemBinds {
		src := "/" + name
		if !util.DirExists(src) {
			continue
		}
		entries = append(entries,
			mount.Entry{Kind: mount.KindDirectory, Name: name, Mode: 0755},
			mount.Entry{Kind: mount.KindBindReadonly, Name: name, Data: src},
		)
	}

	for _, name := range sysSubtrees {
		src := "/" + name
		if !util.DirExists(src) {
			continue
		}
		entries = append(entries,
			mount.Entry{Kind: mount.KindDirectory, Name: name, Mode: 0755},
			mount.Entry{Kind: mount.KindBindReadonly, Name: name, Data: src},
		)
	}

	entries = append(entries,
		mount.Entry{Kind: mount.KindDirectory, Name: "tmp", Mode: 01777},
		mount.Entry{Kind: mount.KindDirectory, Name: "var", Mode: 0755},
		mount.Entry{Kind: mount.KindDirectory, Name: "var/tmp", Mode: 01777},
		mount.Entry{Kind: mount.KindDirectory, Name: "run", Mode: 01777},
		mount.Entry{Kind: mount.KindSymlink, Name: "var/run", Data: "../run"},
		mount.Entry{Kind: mount.KindDirectory, Name: "app", Mode: 0755},
		mount.Entry{Kind: mount.KindDirectory, Name: "etc", Mode: 0755},
	)

	// passwd and group are synthesized rather than bound from the host:
	// the caller's uid inside the sandbox does not necessarily match any
	// host account, so a bound host file would show the wrong identity.
	entries = append(entries,
		mount.Entry{Kind: mount.KindSynthPasswd, Name: "etc/passwd", Mode: 0644},
		mount.Entry{Kind: mount.KindSynthGroup, Name: "etc/group", Mode: 0644},
	)

	for _, name := range mount.EtcWhitelist {
		if name == "passwd" || name == "group" {
			continue
		}
		src := "/etc/" + name
		if !util.FileExists(src) {
			continue
		}
		entries = append(entries, mount.Entry{Kind: mount.KindBindReadonly, Name: "etc/" + name, Data: src})
	}

	createdDirs := map[string]bool{
		"dev": true, "proc": true, "tmp": true, "var": true, "run": true,
		"app": true, "etc": true,
	}
	for _, name := range systemBinds {
		createdDirs[name] = true
	}
	for _, name := range sysSubtrees {
		createdDirs[name] = true
	}

	for _, src := range cfg.PrefixDirs {
		dst := prefixMountName(src)
		for _, parent := range intermediateDirs(dst) {
			if createdDirs[parent] {
				continue
			}
			createdDirs[parent] = true
			entries = append(entries, mount.Entry{Kind: mount.KindDirectory, Name: parent, Mode: 0755})
		}
		entries = append(entries, mount.Entry{Kind: mount.KindBindReadonly, Name: dst, Data: src})
	}

	return entries
}

// intermediateDirs returns every path prefix of a slash-separated relative
// path, including the path itself, shortest first — the mkdir order a
// nested bind target needs.
func intermediateDirs(path string) []string {
	var dirs []string
	for i, seg := range pathSegments(path) {
		if i == 0 {
			dirs = append(dirs, seg)
			continue
		}
		dirs = append(dirs, dirs[i-1]+"/"+seg)
	}
	return dirs
}

func pathSegments(path string) []string {
	var segs []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if i > start {
				segs = append(segs, path[start:i])
			}
			start = i + 1
		}
	}
	return segs
}

// prefixMountName strips the leading "/" from a THINGENGINE_PREFIX entry
// so it can be used as a recipe Name (relative to the new root), mirroring
// the host path exactly (spec.md §4.7: "--ro-bind <p> <p>").
func prefixMountName(hostPath string) string {
	if len(hostPath) > 0 && hostPath[0] == '/' {
		return hostPath[1:]
	}
	return hostPath
}
