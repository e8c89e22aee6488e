package vos

import (
	"os"
	"time"

	"github.com/spf13/afero"
)

// FsOp is a textual description of the filesystem operation.
type FsOp = string

const (
	FsOpChtimes  FsOp = "chtimes"
	FsOpSymlink  FsOp = "symlink"
	FsOpChmod    FsOp = "chmod"
	FsOpChown    FsOp = "chown"
	FsOpStat     FsOp = "stat"
	FsOpRename   FsOp = "rename"
	FsOpRemove   FsOp = "remove"
	FsOpOpen     FsOp = "open"
	FsOpWrite    FsOp = "write"
	FsOpMkdir    FsOp = "mkdir"
	FsOpCreate   FsOp = "create"
	FsOpLstat    FsOp = "lstat"
	FsOpReadlink FsOp = "readlink"
)

// IsWriteOp reports whether the operation modifies the filesystem.
func IsWriteOp(op FsOp) bool {
	switch op {
	case FsOpChtimes, FsOpSymlink, FsOpChmod, FsOpChown, FsOpRename,
		FsOpRemove, FsOpWrite, FsOpMkdir, FsOpCreate:
		return true
	default:
		return false
	}
}

// FileMapper rewrites the path of a single operation, or rejects it.
type FileMapper func(op FsOp, name string) (path string, err error)

// PathMappingFs maps all paths on a filesystem via callback to another path.
type PathMappingFs struct {
	BaseFs afero.Fs
	Mapper FileMapper
}

var _ afero.Symlinker = (*PathMappingFs)(nil)

// PathMappingFsFile implements afero.File, reporting the name it was opened
// with rather than the mapped one.
type PathMappingFsFile struct {
	afero.File
	name string
}

// Name returns the name of the file.
func (f *PathMappingFsFile) Name() string {
	return f.name
}

func NewPathMappingFs(base afero.Fs, mapper FileMapper) *PathMappingFs {
	return &PathMappingFs{BaseFs: base, Mapper: mapper}
}

func openOp(flag int) FsOp {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0 {
		return FsOpWrite
	}
	return FsOpOpen
}

func (b *PathMappingFs) mapPath(op FsOp, name string) (string, error) {
	mapped, err := b.Mapper(op, name)
	if err != nil {
		return "", &os.PathError{Op: op, Path: name, Err: err}
	}
	return mapped, nil
}

func (b *PathMappingFs) Chtimes(name string, atime, mtime time.Time) error {
	name, err := b.mapPath(FsOpChtimes, name)
	if err != nil {
		return err
	}
	return b.BaseFs.Chtimes(name, atime, mtime)
}

func (b *PathMappingFs) Chmod(name string, mode os.FileMode) error {
	name, err := b.mapPath(FsOpChmod, name)
	if err != nil {
		return err
	}
	return b.BaseFs.Chmod(name, mode)
}

func (b *PathMappingFs) Chown(name string, uid, gid int) error {
	name, err := b.mapPath(FsOpChown, name)
	if err != nil {
		return err
	}
	return b.BaseFs.Chown(name, uid, gid)
}

func (b *PathMappingFs) Name() string {
	return "PathMappingFs"
}

func (b *PathMappingFs) Stat(name string) (os.FileInfo, error) {
	name, err := b.mapPath(FsOpStat, name)
	if err != nil {
		return nil, err
	}
	return b.BaseFs.Stat(name)
}

func (b *PathMappingFs) Rename(oldname, newname string) error {
	oldname, err := b.mapPath(FsOpRename, oldname)
	if err != nil {
		return err
	}
	if newname, err = b.mapPath(FsOpRename, newname); err != nil {
		return err
	}
	return b.BaseFs.Rename(oldname, newname)
}

func (b *PathMappingFs) RemoveAll(name string) error {
	name, err := b.mapPath(FsOpRemove, name)
	if err != nil {
		return err
	}
	return b.BaseFs.RemoveAll(name)
}

func (b *PathMappingFs) Remove(name string) error {
	name, err := b.mapPath(FsOpRemove, name)
	if err != nil {
		return err
	}
	return b.BaseFs.Remove(name)
}

func (b *PathMappingFs) OpenFile(name string, flag int, mode os.FileMode) (afero.File, error) {
	mapped, err := b.mapPath(openOp(flag), name)
	if err != nil {
		return nil, err
	}
	sourcef, err := b.BaseFs.OpenFile(mapped, flag, mode)
	if err != nil {
		return nil, err
	}
	return &PathMappingFsFile{File: sourcef, name: name}, nil
}

func (b *PathMappingFs) Open(name string) (afero.File, error) {
	mapped, err := b.mapPath(FsOpOpen, name)
	if err != nil {
		return nil, err
	}
	sourcef, err := b.BaseFs.Open(mapped)
	if err != nil {
		return nil, err
	}
	return &PathMappingFsFile{File: sourcef, name: name}, nil
}

func (b *PathMappingFs) Mkdir(name string, mode os.FileMode) error {
	name, err := b.mapPath(FsOpMkdir, name)
	if err != nil {
		return err
	}
	return b.BaseFs.Mkdir(name, mode)
}

func (b *PathMappingFs) MkdirAll(name string, mode os.FileMode) error {
	name, err := b.mapPath(FsOpMkdir, name)
	if err != nil {
		return err
	}
	return b.BaseFs.MkdirAll(name, mode)
}

func (b *PathMappingFs) Create(name string) (afero.File, error) {
	mapped, err := b.mapPath(FsOpCreate, name)
	if err != nil {
		return nil, err
	}
	sourcef, err := b.BaseFs.Create(mapped)
	if err != nil {
		return nil, err
	}
	return &PathMappingFsFile{File: sourcef, name: name}, nil
}

func (b *PathMappingFs) LstatIfPossible(name string) (os.FileInfo, bool, error) {
	name, err := b.mapPath(FsOpLstat, name)
	if err != nil {
		return nil, false, err
	}
	if lstater, ok := b.BaseFs.(afero.Lstater); ok {
		return lstater.LstatIfPossible(name)
	}
	fi, err := b.BaseFs.Stat(name)
	return fi, false, err
}

// SymlinkIfPossible maps the new link's path; the target is stored verbatim.
func (b *PathMappingFs) SymlinkIfPossible(oldname, newname string) error {
	mapped, err := b.Mapper(FsOpSymlink, newname)
	if err != nil {
		return &os.LinkError{Op: FsOpSymlink, Old: oldname, New: newname, Err: err}
	}
	if linker, ok := b.BaseFs.(afero.Linker); ok {
		return linker.SymlinkIfPossible(oldname, mapped)
	}
	return &os.LinkError{Op: FsOpSymlink, Old: oldname, New: newname, Err: afero.ErrNoSymlink}
}

func (b *PathMappingFs) ReadlinkIfPossible(name string) (string, error) {
	name, err := b.mapPath(FsOpReadlink, name)
	if err != nil {
		return "", err
	}
	if reader, ok := b.BaseFs.(afero.LinkReader); ok {
		return reader.ReadlinkIfPossible(name)
	}
	return "", &os.PathError{Op: FsOpReadlink, Path: name, Err: afero.ErrNoReadlink}
}

// NewRelativeFs resolves relative paths against the directory returned by
// getwd.
func NewRelativeFs(base afero.Fs, getwd func() string) *PathMappingFs {
	return NewPathMappingFs(base, func(op FsOp, name string) (string, error) {
		return Abs(getwd(), name), nil
	})
}

// NewReadOnlyPathsFs rejects writes at or below any of the given prefixes with
// os.ErrPermission.
func NewReadOnlyPathsFs(base afero.Fs, prefixes []string) *PathMappingFs {
	return NewPathMappingFs(base, func(op FsOp, name string) (string, error) {
		if IsWriteOp(op) && underAny(Abs("/", name), prefixes) {
			return "", os.ErrPermission
		}
		return name, nil
	})
}
