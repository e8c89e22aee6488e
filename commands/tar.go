package commands

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/sandsh/sandsh/core/vos"
	"github.com/spf13/afero"
)

// Tar implements a basic tar command that can create, list and extract
// archives.
func Tar(virtOS vos.VOS) int {
	cmd := &SimpleCommand{
		Use:   "tar [-c|-t|-x] [-vz] [-C DIR] -f ARCHIVE [FILE...]",
		Short: "Modify Tape ARchives.",
	}

	create := cmd.Flags().Bool('c', "Create a new archive")
	list := cmd.Flags().Bool('t', "List the contents of an archive")
	extract := cmd.Flags().Bool('x', "Extract files")
	verbose := cmd.Flags().Bool('v', "Verbose mode")
	gzipped := cmd.Flags().Bool('z', "Filter the archive through gzip")
	archive := cmd.Flags().String('f', "", "The archive to use")
	directory := cmd.Flags().String('C', "", "Change to DIR before operating")

	return cmd.Run(virtOS, func() int {
		modes := 0
		for _, set := range []bool{*create, *list, *extract} {
			if set {
				modes++
			}
		}
		if modes != 1 {
			fmt.Fprintln(virtOS.Stderr(), "tar: You must specify one of the '-ctx' options")
			return 2
		}
		if *archive == "" {
			fmt.Fprintln(virtOS.Stderr(), "tar: no archive supplied, use -f")
			return 2
		}

		t := &tarJob{
			virtOS:  virtOS,
			verbose: *verbose,
			gzip:    *gzipped,
			dir:     *directory,
		}

		var err error
		switch {
		case *create:
			err = t.create(*archive, cmd.Flags().Args())
		default:
			err = t.read(*archive, *extract)
		}
		if err != nil {
			fmt.Fprintf(virtOS.Stderr(), "tar: %v\n", err)
			return 2
		}
		return 0
	})
}

type tarJob struct {
	virtOS  vos.VOS
	verbose bool
	gzip    bool
	dir     string
}

// resolve maps an archive member name to a path in the sandbox.
func (t *tarJob) resolve(name string) string {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if t.dir != "" {
		return path.Join(t.dir, name)
	}
	return name
}

func (t *tarJob) create(archive string, files []string) error {
	if len(files) == 0 {
		return errors.New("Cowardly refusing to create an empty archive")
	}

	out, err := t.virtOS.Create(archive)
	if err != nil {
		return fileError(archive, err)
	}
	defer out.Close()

	var w io.Writer = out
	if t.gzip {
		gz := gzip.NewWriter(out)
		defer gz.Close()
		w = gz
	}
	tw := tar.NewWriter(w)
	defer tw.Close()

	for _, file := range files {
		err := afero.Walk(t.virtOS, t.resolve(file), func(p string, info fs.FileInfo, err error) error {
			if err != nil {
				return err
			}

			member := p
			if t.dir != "" {
				member = strings.TrimPrefix(strings.TrimPrefix(p, t.dir), "/")
			}
			return t.addMember(tw, p, member)
		})
		if err != nil {
			return fileError(file, err)
		}
	}
	return nil
}

func (t *tarJob) addMember(tw *tar.Writer, p, member string) error {
	info, err := lstat(t.virtOS, p)
	if err != nil {
		return err
	}

	var link string
	if info.Mode()&fs.ModeSymlink != 0 {
		if link, err = readlink(t.virtOS, p); err != nil {
			return err
		}
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	hdr.Name = member
	if info.IsDir() {
		hdr.Name += "/"
	}
	if t.verbose {
		fmt.Fprintln(t.virtOS.Stdout(), hdr.Name)
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	if !info.Mode().IsRegular() {
		return nil
	}
	fd, err := t.virtOS.Open(p)
	if err != nil {
		return err
	}
	defer fd.Close()
	_, err = io.Copy(tw, fd)
	return err
}

func (t *tarJob) read(archive string, extract bool) error {
	archiveFd, err := t.virtOS.Open(archive)
	if err != nil {
		return fileError(archive, err)
	}
	defer archiveFd.Close()

	var tarFd io.Reader = archiveFd
	if t.gzip {
		gzFd, err := gzip.NewReader(archiveFd)
		if err != nil {
			return fmt.Errorf("couldn't unzip: %w", err)
		}
		defer gzFd.Close()
		tarFd = gzFd
	}

	tarReader := tar.NewReader(tarFd)
	for {
		hdr, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("couldn't read archive: %w", err)
		}

		// Listing always names members, extraction only when verbose.
		if !extract || t.verbose {
			fmt.Fprintln(t.virtOS.Stdout(), hdr.Name)
		}
		if !extract {
			continue
		}
		if err := t.extractMember(tarReader, hdr); err != nil {
			return fmt.Errorf("couldn't extract %q: %w", hdr.Name, err)
		}
	}
}

func (t *tarJob) extractMember(r io.Reader, hdr *tar.Header) error {
	name := t.resolve(hdr.Name)
	mode := hdr.FileInfo().Mode()

	if dir := path.Dir(name); dir != "." {
		if err := t.virtOS.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	switch {
	case mode.IsDir():
		return t.virtOS.MkdirAll(name, mode.Perm())

	case mode&fs.ModeSymlink != 0:
		linker, ok := t.virtOS.(afero.Linker)
		if !ok {
			return afero.ErrNoSymlink
		}
		return linker.SymlinkIfPossible(hdr.Linkname, name)

	case mode.IsRegular():
		fd, err := t.virtOS.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
		if err != nil {
			return err
		}
		if _, err := io.Copy(fd, r); err != nil {
			fd.Close()
			return err
		}
		if err := fd.Close(); err != nil {
			return err
		}
		return t.virtOS.Chtimes(name, hdr.ModTime, hdr.ModTime)

	default:
		// Devices and fifos have no meaning in the sandbox.
		return nil
	}
}

var _ vos.ProcessFunc = Tar

func init() {
	mustAddBinCmd("tar", Tar)
}
