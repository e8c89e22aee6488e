package vos

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"sort"

	"github.com/sandsh/sandsh/core/host"
	"github.com/spf13/afero"
)

var (
	// ErrIsDir is returned when reading or writing a directory as a file.
	ErrIsDir = errors.New("is a directory")

	// ErrDirNotEmpty is returned when removing a directory with children.
	ErrDirNotEmpty = errors.New("directory not empty")
)

// HostFS exposes a VFS through the host.FS capability. Every error it
// returns is a *host.Error.
type HostFS struct {
	fs VFS
}

var _ host.FS = (*HostFS)(nil)

func NewHostFS(fs VFS) *HostFS {
	return &HostFS{fs: fs}
}

// Fs returns the underlying filesystem.
func (h *HostFS) Fs() VFS {
	return h.fs
}

func (h *HostFS) lstat(name string) (os.FileInfo, error) {
	if lstater, ok := h.fs.(afero.Lstater); ok {
		fi, _, err := lstater.LstatIfPossible(name)
		return fi, err
	}
	return h.fs.Stat(name)
}

// Stat implements host.FS.
func (h *HostFS) Stat(name string) (host.StatInfo, error) {
	fi, err := h.fs.Stat(name)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return host.StatInfo{}, nil
	case err != nil:
		return host.StatInfo{}, host.FromError("stat", name, err)
	}

	info := host.StatInfo{
		Exists:  true,
		IsFile:  fi.Mode().IsRegular(),
		IsDir:   fi.IsDir(),
		Size:    uint64(fi.Size()),
		Mode:    uint32(fi.Mode().Perm()),
		MtimeMs: uint64(fi.ModTime().UnixNano() / 1e6),
	}
	if lfi, err := h.lstat(name); err == nil && lfi.Mode()&os.ModeSymlink != 0 {
		info.IsSymlink = true
	}
	return info, nil
}

// ReadFile implements host.FS.
func (h *HostFS) ReadFile(name string) (string, error) {
	if IsDevNull(name) {
		return "", nil
	}

	fi, err := h.fs.Stat(name)
	if err != nil {
		return "", host.FromError("read", name, err)
	}
	if fi.IsDir() {
		return "", host.NewError(host.IOError, "read", name, ErrIsDir)
	}

	data, err := afero.ReadFile(h.fs, name)
	if err != nil {
		return "", host.FromError("read", name, err)
	}
	return string(data), nil
}

// WriteFile implements host.FS. The parent directory must exist.
func (h *HostFS) WriteFile(name, data string, mode host.WriteMode) error {
	if IsDevNull(name) {
		return nil
	}

	if err := h.checkParent("write", name); err != nil {
		return err
	}
	if fi, err := h.fs.Stat(name); err == nil && fi.IsDir() {
		return host.NewError(host.IOError, "write", name, ErrIsDir)
	}

	flag := os.O_WRONLY | os.O_CREATE
	if mode == host.Append {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}

	fd, err := h.fs.OpenFile(name, flag, 0644)
	if err != nil {
		return host.FromError("write", name, err)
	}
	if _, err := fd.WriteString(data); err != nil {
		fd.Close()
		return host.FromError("write", name, err)
	}
	return host.FromError("write", name, fd.Close())
}

// ReadDir implements host.FS, returning sorted entry names.
func (h *HostFS) ReadDir(name string) ([]string, error) {
	infos, err := afero.ReadDir(h.fs, name)
	if err != nil {
		return nil, host.FromError("readdir", name, err)
	}

	var out []string
	for _, fi := range infos {
		out = append(out, fi.Name())
	}
	sort.Strings(out)
	return out, nil
}

// Mkdir implements host.FS. Unlike MemMapFs it refuses to create missing
// parents.
func (h *HostFS) Mkdir(name string) error {
	if err := h.checkParent("mkdir", name); err != nil {
		return err
	}
	return host.FromError("mkdir", name, h.fs.Mkdir(name, 0755))
}

func (h *HostFS) checkParent(op, name string) error {
	fi, err := h.fs.Stat(path.Dir(name))
	switch {
	case err != nil:
		return host.FromError(op, name, err)
	case !fi.IsDir():
		return host.NewError(host.NotFound, op, name, fs.ErrNotExist)
	default:
		return nil
	}
}

// Remove implements host.FS. Non-recursive removal of a directory only
// succeeds if it is empty.
func (h *HostFS) Remove(name string, recursive bool) error {
	fi, err := h.lstat(name)
	if err != nil {
		return host.FromError("remove", name, err)
	}

	if recursive {
		if err := h.fs.RemoveAll(name); err != nil {
			return host.FromError("remove", name, err)
		}
		return h.checkRemoved(name)
	}

	if fi.IsDir() {
		children, err := afero.ReadDir(h.fs, name)
		if err != nil {
			return host.FromError("remove", name, err)
		}
		if len(children) > 0 {
			return host.NewError(host.IOError, "remove", name, ErrDirNotEmpty)
		}
	}
	if err := h.fs.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return host.FromError("remove", name, err)
	}
	return h.checkRemoved(name)
}

// checkRemoved catches files that live in a read-only lower layer, which
// copy-on-write filesystems silently fail to remove.
func (h *HostFS) checkRemoved(name string) error {
	if _, err := h.lstat(name); err == nil {
		return host.NewError(host.PermissionDenied, "remove", name, fs.ErrPermission)
	}
	return nil
}

// Chmod implements host.FS.
func (h *HostFS) Chmod(name string, mode uint32) error {
	return host.FromError("chmod", name, h.fs.Chmod(name, os.FileMode(mode)&os.ModePerm))
}

// Glob implements host.FS.
func (h *HostFS) Glob(pattern string) ([]string, error) {
	matches, err := afero.Glob(h.fs, pattern)
	if err != nil {
		return nil, host.NewError(host.Other, "glob", pattern, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// Rename implements host.FS.
func (h *HostFS) Rename(from, to string) error {
	return host.FromError("rename", from, h.fs.Rename(from, to))
}

// Symlink implements host.FS.
func (h *HostFS) Symlink(target, link string) error {
	linker, ok := h.fs.(afero.Linker)
	if !ok {
		return host.NewError(host.Other, "symlink", link, afero.ErrNoSymlink)
	}
	return host.FromError("symlink", link, linker.SymlinkIfPossible(target, link))
}

// Readlink implements host.FS.
func (h *HostFS) Readlink(name string) (string, error) {
	reader, ok := h.fs.(afero.LinkReader)
	if !ok {
		return "", host.NewError(host.Other, "readlink", name, afero.ErrNoReadlink)
	}
	target, err := reader.ReadlinkIfPossible(name)
	return target, host.FromError("readlink", name, err)
}
