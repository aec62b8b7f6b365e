package mount

import "golang.org/x/sys/unix"

// TableRow describes one entry of the static mount table: the virtual
// filesystems the namespace builder mounts by name rather than by bind.
type TableRow struct {
	FSType string
	Data   string
	Flags  uintptr
}

// StaticMountTable is keyed by the mount's path relative to the new root,
// matching spec.md §6 exactly: proc on proc, a fresh devpts instance on
// dev/pts, and a mode-1777 tmpfs on dev/shm.
var StaticMountTable = map[string]TableRow{
	"proc": {
		FSType: "proc",
		Flags:  unix.MS_NOSUID | unix.MS_NOEXEC | unix.MS_NODEV,
	},
	"dev/pts": {
		FSType: "devpts",
		Data:   "newinstance,ptmxmode=0666,mode=620",
		Flags:  unix.MS_NOSUID | unix.MS_NOEXEC,
	},
	"dev/shm": {
		FSType: "tmpfs",
		Data:   "mode=1777",
		Flags:  unix.MS_NOSUID | unix.MS_NODEV | unix.MS_STRICTATIME,
	},
}

// EtcWhitelist is the only /etc entries the new root's /etc may contain,
// each individually bind-mounted read-only from the host's /etc, except
// that the native variant synthesizes passwd and group instead (see
// nsbuild.MainRecipe). Anything else under the host's /etc never reaches
// the sandbox. Per spec.md §6.
var EtcWhitelist = []string{
	"ca-certificates",
	"ca-certificates.conf",
	"ssl",
	"pki",
	"hostname",
	"localtime",
	"machine-id",
	"os-release",
	"nsswitch.conf",
	"host.conf",
	"hosts",
	"passwd",
	"group",
	"networks",
	"protocols",
	"services",
	"ethers",
	"shells",
	"ld.so.cache",
	"ld.so.conf",
	"ld.so.conf.d",
	"resolv.conf",
}

// ExtraRootBlocklist names the top-level entries of the host root that
// mount_extra_root_dirs must never bind into the new root, because the
// recipe already owns them (virtual filesystems, the prefix tree, the
// working directory bind) or because binding them would be meaningless
// inside the new root (".", ".."). Per spec.md §6.
var ExtraRootBlocklist = []string{
	".", "..",
	"proc", "sys", "dev",
	"lib", "lib32", "lib64", "bin", "sbin",
	"boot", "root", "srv", "home", "media", "mnt",
	"tmp", "app", "var", "run",
}
