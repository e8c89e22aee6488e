package vos

import (
	"errors"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/afero"
)

const (
	// maxSymlinkHops matches the Linux MAXSYMLINKS limit.
	maxSymlinkHops = 40

	// linkMagic starts the content of every file that stores a link.
	linkMagic = "\x00sandsh-symlink\x00"

	// maxLinkSize bounds the content read when checking for a link.
	maxLinkSize = len(linkMagic) + 4096
)

var (
	// ErrSymlinkLoop is returned when resolving a path follows too many links.
	ErrSymlinkLoop = errors.New("too many levels of symbolic links")

	errNotLink = errors.New("not a link")
)

// LinkingFs backfills POSIX style symlink functionality onto other file types.
//
// A link is stored in the base filesystem as a regular file holding a magic
// header followed by the target, so links survive any afero layer that can
// store plain files. Every path passed to the filesystem is resolved through
// links before it reaches the base.
type LinkingFs struct {
	VFS
}

var _ afero.Symlinker = (*LinkingFs)(nil)

func NewLinkingFs(base VFS) *LinkingFs {
	return &LinkingFs{base}
}

func (lfs *LinkingFs) Name() string {
	return "LinkingFs"
}

// readLink returns the target of name if it is a link.
func (lfs *LinkingFs) readLink(name string) (string, bool) {
	fi, err := lfs.VFS.Stat(name)
	if err != nil || !fi.Mode().IsRegular() || fi.Size() < int64(len(linkMagic)) || fi.Size() > int64(maxLinkSize) {
		return "", false
	}

	fd, err := lfs.VFS.Open(name)
	if err != nil {
		return "", false
	}
	defer fd.Close()

	contents, err := io.ReadAll(io.LimitReader(fd, int64(maxLinkSize)))
	if err != nil || !strings.HasPrefix(string(contents), linkMagic) {
		return "", false
	}
	return strings.TrimPrefix(string(contents), linkMagic), true
}

// resolve returns the physical path of name. Components that don't exist are
// appended unresolved so the result can be used to create them.
func (lfs *LinkingFs) resolve(op, name string, followLast bool) (string, error) {
	pending := splitPath(Abs("/", name))
	resolved := "/"
	hops := 0

	for len(pending) > 0 {
		part := pending[0]
		pending = pending[1:]

		switch part {
		case ".":
			continue
		case "..":
			resolved = path.Dir(resolved)
			continue
		}

		next := path.Join(resolved, part)
		if len(pending) == 0 && !followLast {
			return next, nil
		}

		target, ok := lfs.readLink(next)
		if !ok {
			resolved = next
			continue
		}

		hops++
		if hops > maxSymlinkHops {
			return "", &os.PathError{Op: op, Path: name, Err: ErrSymlinkLoop}
		}
		if path.IsAbs(target) {
			resolved = "/"
		}
		pending = append(splitPath(target), pending...)
	}

	return resolved, nil
}

func (lfs *LinkingFs) Chtimes(name string, atime, mtime time.Time) error {
	name, err := lfs.resolve(FsOpChtimes, name, true)
	if err != nil {
		return err
	}
	return lfs.VFS.Chtimes(name, atime, mtime)
}

func (lfs *LinkingFs) Chmod(name string, mode os.FileMode) error {
	name, err := lfs.resolve(FsOpChmod, name, true)
	if err != nil {
		return err
	}
	return lfs.VFS.Chmod(name, mode)
}

func (lfs *LinkingFs) Chown(name string, uid, gid int) error {
	name, err := lfs.resolve(FsOpChown, name, true)
	if err != nil {
		return err
	}
	return lfs.VFS.Chown(name, uid, gid)
}

func (lfs *LinkingFs) Stat(name string) (os.FileInfo, error) {
	name, err := lfs.resolve(FsOpStat, name, true)
	if err != nil {
		return nil, err
	}
	return lfs.VFS.Stat(name)
}

func (lfs *LinkingFs) Open(name string) (afero.File, error) {
	name, err := lfs.resolve(FsOpOpen, name, true)
	if err != nil {
		return nil, err
	}
	return lfs.VFS.Open(name)
}

func (lfs *LinkingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	name, err := lfs.resolve(openOp(flag), name, true)
	if err != nil {
		return nil, err
	}
	return lfs.VFS.OpenFile(name, flag, perm)
}

func (lfs *LinkingFs) Create(name string) (afero.File, error) {
	name, err := lfs.resolve(FsOpCreate, name, true)
	if err != nil {
		return nil, err
	}
	return lfs.VFS.Create(name)
}

func (lfs *LinkingFs) Mkdir(name string, perm os.FileMode) error {
	name, err := lfs.resolve(FsOpMkdir, name, true)
	if err != nil {
		return err
	}
	return lfs.VFS.Mkdir(name, perm)
}

func (lfs *LinkingFs) MkdirAll(name string, perm os.FileMode) error {
	name, err := lfs.resolve(FsOpMkdir, name, true)
	if err != nil {
		return err
	}
	return lfs.VFS.MkdirAll(name, perm)
}

// Remove deletes the link itself rather than its target.
func (lfs *LinkingFs) Remove(name string) error {
	name, err := lfs.resolve(FsOpRemove, name, false)
	if err != nil {
		return err
	}
	return lfs.VFS.Remove(name)
}

func (lfs *LinkingFs) RemoveAll(name string) error {
	name, err := lfs.resolve(FsOpRemove, name, false)
	if err != nil {
		return err
	}
	return lfs.VFS.RemoveAll(name)
}

func (lfs *LinkingFs) Rename(oldname, newname string) error {
	oldname, err := lfs.resolve(FsOpRename, oldname, false)
	if err != nil {
		return err
	}
	if newname, err = lfs.resolve(FsOpRename, newname, false); err != nil {
		return err
	}
	return lfs.VFS.Rename(oldname, newname)
}

func (lfs *LinkingFs) LstatIfPossible(name string) (os.FileInfo, bool, error) {
	name, err := lfs.resolve(FsOpLstat, name, false)
	if err != nil {
		return nil, true, err
	}
	fi, err := lfs.VFS.Stat(name)
	if err != nil {
		return nil, true, err
	}
	if target, ok := lfs.readLink(name); ok {
		return &linkInfo{FileInfo: fi, size: int64(len(target))}, true, nil
	}
	return fi, true, nil
}

func (lfs *LinkingFs) ReadlinkIfPossible(name string) (string, error) {
	resolved, err := lfs.resolve(FsOpReadlink, name, false)
	if err != nil {
		return "", err
	}
	if _, err := lfs.VFS.Stat(resolved); err != nil {
		return "", err
	}
	target, ok := lfs.readLink(resolved)
	if !ok {
		return "", &os.PathError{Op: FsOpReadlink, Path: name, Err: errNotLink}
	}
	return target, nil
}

func (lfs *LinkingFs) SymlinkIfPossible(oldname, newname string) error {
	resolved, err := lfs.resolve(FsOpSymlink, newname, false)
	if err != nil {
		return err
	}
	if _, err := lfs.VFS.Stat(resolved); err == nil {
		return &os.LinkError{Op: FsOpSymlink, Old: oldname, New: newname, Err: os.ErrExist}
	}
	return afero.WriteFile(lfs.VFS, resolved, []byte(linkMagic+oldname), 0777)
}

// linkInfo reports a stored link the way lstat(2) would.
type linkInfo struct {
	os.FileInfo
	size int64
}

func (li *linkInfo) Mode() os.FileMode {
	return os.ModeSymlink | 0777
}

func (li *linkInfo) Size() int64 {
	return li.size
}
