package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/sandsh/sandsh/core/vos"
)

type mkdirJob struct {
	virtOS  vos.VOS
	parents bool
	verbose bool
	mode    fs.FileMode
}

// mkdirOne creates dir, whose parent must already exist. Unlike mkdir(2),
// afero would create missing parents so they're checked here.
func (m *mkdirJob) mkdirOne(dir string) error {
	parent, err := m.virtOS.Stat(path.Dir(dir))
	switch {
	case err != nil:
		return err
	case !parent.IsDir():
		return errors.New("Not a directory")
	}
	if err := m.virtOS.Mkdir(dir, m.mode); err != nil {
		return err
	}
	// Mkdir may apply its own mask, so set the exact mode afterwards.
	if err := m.virtOS.Chmod(dir, m.mode); err != nil {
		return err
	}
	if m.verbose {
		fmt.Fprintf(m.virtOS.Stdout(), "mkdir: created directory '%s'\n", dir)
	}
	return nil
}

// mkdirParents creates every missing component of dir in order. Existing
// directories along the way, including dir itself, are fine.
func (m *mkdirJob) mkdirParents(dir string) error {
	prefix := ""
	if strings.HasPrefix(dir, "/") {
		prefix = "/"
	}
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		if part == "" {
			continue
		}
		prefix = path.Join(prefix, part)

		fi, err := m.virtOS.Stat(prefix)
		switch {
		case err == nil && fi.IsDir():
			continue
		case err == nil && prefix == path.Clean(dir):
			return fs.ErrExist
		case err == nil:
			return errors.New("Not a directory")
		case !errors.Is(err, fs.ErrNotExist):
			return err
		}
		if err := m.mkdirOne(prefix); err != nil {
			return err
		}
	}
	return nil
}

func (m *mkdirJob) create(dir string) error {
	if m.parents {
		return m.mkdirParents(dir)
	}
	if _, err := m.virtOS.Stat(dir); err == nil {
		return fs.ErrExist
	}
	return m.mkdirOne(dir)
}

// Mkdir implements a POSIX mkdir command.
//
// https://pubs.opengroup.org/onlinepubs/9699919799.2018edition/utilities/mkdir.html
func Mkdir(virtOS vos.VOS) int {
	cmd := &SimpleCommand{
		Use:   "mkdir [-pv] [-m MODE] DIRECTORY...",
		Short: "Create the DIRECTORY(ies), if they do not already exist.",
	}

	opts := cmd.Flags()
	parents := opts.BoolLong("parents", 'p', "no error if existing, make parent directories as needed")
	verbose := opts.BoolLong("verbose", 'v', "print a message for each created directory")
	modeExpr := opts.StringLong("mode", 'm', "", "set file mode (as in chmod), not a=rwx - umask", "MODE")

	return cmd.Run(virtOS, func() int {
		directories := opts.Args()
		if len(directories) == 0 {
			fmt.Fprintln(virtOS.Stderr(), "mkdir: missing operand")
			return 1
		}

		job := &mkdirJob{virtOS: virtOS, parents: *parents, verbose: *verbose, mode: 0755}
		if *modeExpr != "" {
			mode, err := ChmodApplyMode(*modeExpr, fs.ModeDir|0777)
			if err != nil {
				virtOS.LogInvalidInvocation(err)
				fmt.Fprintf(virtOS.Stderr(), "mkdir: invalid mode '%s'\n", *modeExpr)
				return 1
			}
			job.mode = mode &^ fs.ModeDir
		}

		status := 0
		for _, dir := range directories {
			if err := job.create(dir); err != nil {
				fmt.Fprintf(virtOS.Stderr(), "mkdir: cannot create directory '%s': %s\n", dir, describeFsError(err))
				status = 1
			}
		}
		return status
	})
}

var _ vos.ProcessFunc = Mkdir

func init() {
	mustAddBinCmd("mkdir", Mkdir)
}
