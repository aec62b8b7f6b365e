package mount

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Kind is one of the recipe entry kinds from spec.md §3.
type Kind int

const (
	KindRegularFile Kind = iota
	KindDirectory
	KindSymlink
	KindConditionalSymlink
	KindBind
	KindBindReadonly
	KindFSMount
	KindRemount
	KindDeviceNode
	KindShmMount
	KindSynthPasswd
	KindSynthGroup
)

// EntryFlags is the three-bit flag set a recipe entry may carry.
type EntryFlags struct {
	NonFatal     bool
	IfLastFailed bool
	AllowDevices bool
}

// Entry is one row of the declarative filesystem table (spec.md §3).
// Name and Data may both contain the uidPlaceholder, substituted with the
// caller's uid at Run time.
type Entry struct {
	Kind  Kind
	Name  string
	Mode  uint32
	Data  string
	Flags EntryFlags
}

// uidPlaceholder is substituted in Name/Data with the caller's numeric uid.
const uidPlaceholder = "{uid}"

// Validate enforces the one structural invariant the engine cannot repair
// at run time: if-last-failed must directly follow a non-fatal entry.
// Carrying the flag across unrelated entries is a table-authoring error.
func Validate(entries []Entry) error {
	for i, e := range entries {
		if !e.Flags.IfLastFailed {
			continue
		}
		if i == 0 || !entries[i-1].Flags.NonFatal {
			return fmt.Errorf("recipe entry %d (%s): if-last-failed does not directly follow a non-fatal entry", i, e.Name)
		}
	}
	return nil
}

// Run interprets entries in order against root (the process must already
// be chdir'd into root; Name/Data are relative to it). uid is the caller's
// numeric id, substituted into the uidPlaceholder.
func Run(entries []Entry, uid, gid int) error {
	if err := Validate(entries); err != nil {
		return err
	}

	lastNonFatalFailed := false
	for i, e := range entries {
		name := strings.ReplaceAll(e.Name, uidPlaceholder, strconv.Itoa(uid))
		data := strings.ReplaceAll(e.Data, uidPlaceholder, strconv.Itoa(uid))

		if e.Flags.IfLastFailed {
			if !lastNonFatalFailed {
				continue
			}
			lastNonFatalFailed = false
		}

		err := runEntry(e.Kind, name, e.Mode, data, e.Flags, uid, gid)
		if err == nil {
			continue
		}

		if e.Flags.NonFatal {
			var berr *BindError
			if asBindError(err, &berr) && berr.Code == 1 {
				lastNonFatalFailed = true
				continue
			}
		}

		return fmt.Errorf("recipe entry %d (%s): %w", i, name, err)
	}
	return nil
}

func asBindError(err error, target **BindError) bool {
	if berr, ok := err.(*BindError); ok {
		*target = berr
		return true
	}
	return false
}

func runEntry(kind Kind, name string, mode uint32, data string, flags EntryFlags, uid, gid int) error {
	switch kind {
	case KindDirectory:
		return os.Mkdir(name, os.FileMode(mode))

	case KindRegularFile:
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY, os.FileMode(mode))
		if err != nil {
			return err
		}
		return f.Close()

	case KindSymlink:
		return os.Symlink(data, name)

	case KindConditionalSymlink:
		target := "/usr/" + strings.TrimPrefix(data, "usr/")
		if _, err := os.Stat(target); err != nil {
			return nil
		}
		return os.Symlink(data, name)

	case KindBind, KindBindReadonly:
		return Bind(data, name, BindOptions{
			ReadOnly:     kind == KindBindReadonly,
			AllowDevices: flags.AllowDevices,
			Recursive:    true,
		})

	case KindFSMount, KindShmMount:
		row, ok := StaticMountTable[name]
		if !ok {
			return fmt.Errorf("no static mount table row for %q", name)
		}
		return unix.Mount(row.FSType, name, row.FSType, row.Flags, row.Data)

	case KindRemount:
		current, err := MountFlagsOf(name)
		if err != nil {
			return err
		}
		return unix.Mount("none", name, "", unix.MS_REMOUNT|current|uintptr(mode), "")

	case KindDeviceNode:
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY, 0)
		if err != nil {
			return err
		}
		f.Close()
		return Bind(filepath.Join("/", name), name, BindOptions{AllowDevices: true})

	case KindSynthPasswd:
		return writeSynthPasswd(name, uid, gid)

	case KindSynthGroup:
		return writeSynthGroup(name, gid)

	default:
		return fmt.Errorf("unknown recipe entry kind %d", kind)
	}
}

// writeSynthPasswd synthesizes a two-line /etc/passwd: the caller's own
// entry (uid/gid fixed to the sandboxed values) and a nfsnobody fallback,
// per spec.md §4.3.
func writeSynthPasswd(name string, uid, gid int) error {
	username := "sandbox"
	home := "/app"
	shell := "/bin/sh"
	if u, err := user.LookupId(strconv.Itoa(uid)); err == nil {
		username = u.Username
		if u.HomeDir != "" {
			home = u.HomeDir
		}
	}

	content := fmt.Sprintf(
		"%s:x:%d:%d::%s:%s\nnfsnobody:x:65534:65534:Anonymous NFS User:/var/lib/nfs:/sbin/nologin\n",
		username, uid, gid, home, shell,
	)
	return os.WriteFile(name, []byte(content), 0644)
}

// writeSynthGroup synthesizes the matching two-line /etc/group.
func writeSynthGroup(name string, gid int) error {
	groupname := "sandbox"
	if g, err := user.LookupGroupId(strconv.Itoa(gid)); err == nil {
		groupname = g.Name
	}

	content := fmt.Sprintf("%s:x:%d:\nnfsnobody:x:65534:\n", groupname, gid)
	return os.WriteFile(name, []byte(content), 0644)
}
