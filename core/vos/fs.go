package vos

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// VFS implements a virtual filesystem and is the second layer of the virtual OS.
type VFS = afero.Fs

// TimeSource provides the current time.
type TimeSource func() time.Time

// NewMemFs creates an empty in-memory filesystem with symlink support.
func NewMemFs() VFS {
	return NewLinkingFs(afero.NewMemMapFs())
}

// NewMemCopyOnWriteFs layers a fresh in-memory filesystem over a read-only
// view of base. Writes land in the layer, base is never modified. Writes at
// or below any of readOnlyPaths fail with os.ErrPermission after links are
// resolved.
func NewMemCopyOnWriteFs(base VFS, readOnlyPaths []string) VFS {
	// Links are resolved once, by the outermost layer.
	if lfs, ok := base.(*LinkingFs); ok {
		base = lfs.VFS
	}

	var ufs VFS = afero.NewCopyOnWriteFs(afero.NewReadOnlyFs(base), afero.NewMemMapFs())
	if len(readOnlyPaths) > 0 {
		ufs = NewReadOnlyPathsFs(ufs, readOnlyPaths)
	}
	return NewLinkingFs(ufs)
}

// LoadRootFS reads a tar or tar.gz archive into a new in-memory filesystem.
func LoadRootFS(r io.Reader) (VFS, error) {
	br := bufio.NewReader(r)

	var archive io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gr, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		archive = gr
	}

	vfs := NewMemFs()
	if err := ExtractTarToVFS(vfs, tar.NewReader(archive)); err != nil {
		return nil, err
	}
	return vfs, nil
}

// ExtractTarToVFS copies every entry of the archive into vfs, which must
// support symlinks if the archive contains any.
func ExtractTarToVFS(vfs VFS, t *tar.Reader) error {
	for {
		hdr, err := t.Next()
		switch {
		case err == io.EOF:
			return nil
		case err != nil:
			return err
		}

		if err := extractEntry(vfs, t, hdr); err != nil {
			return fmt.Errorf("extracting %q: %w", hdr.Name, err)
		}
	}
}

func extractEntry(vfs VFS, t *tar.Reader, hdr *tar.Header) error {
	name := Abs("/", hdr.Name)
	if name == "/" {
		return nil
	}

	if err := vfs.MkdirAll(path.Dir(name), 0755); err != nil {
		return err
	}

	mode := hdr.FileInfo().Mode()
	switch {
	case mode&fs.ModeDir != 0:
		if err := vfs.Mkdir(name, mode.Perm()); err != nil && !os.IsExist(err) {
			return err
		}

	case mode&fs.ModeSymlink != 0:
		linker, ok := vfs.(afero.Linker)
		if !ok {
			return afero.ErrNoSymlink
		}
		if err := linker.SymlinkIfPossible(hdr.Linkname, name); err != nil && !os.IsExist(err) {
			return err
		}
		// Links carry no meaningful mode or times.
		return nil

	case hdr.Typeflag == tar.TypeLink:
		data, err := afero.ReadFile(vfs, Abs("/", hdr.Linkname))
		if err != nil {
			return err
		}
		if err := afero.WriteFile(vfs, name, data, mode.Perm()); err != nil {
			return err
		}

	case mode.IsRegular():
		fd, err := vfs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, mode.Perm())
		if err != nil {
			return err
		}
		// Don't defer the close because it'll update the modification time.
		if _, err := io.CopyN(fd, t, hdr.Size); err != nil {
			fd.Close()
			return err
		}
		fd.Close()

	default:
		// Devices, fifos and the like have no meaning in the sandbox.
		return nil
	}

	if err := vfs.Chmod(name, mode.Perm()); err != nil {
		return err
	}
	return vfs.Chtimes(name, hdr.ModTime, hdr.ModTime)
}

// Abs resolves name against dir and cleans the result.
func Abs(dir, name string) string {
	if !path.IsAbs(name) {
		name = path.Join(dir, name)
	}
	return path.Clean("/" + name)
}

func splitPath(name string) []string {
	var out []string
	for _, part := range strings.Split(name, "/") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func underAny(name string, prefixes []string) bool {
	for _, prefix := range prefixes {
		prefix = Abs("/", prefix)
		if name == prefix || strings.HasPrefix(name, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}
