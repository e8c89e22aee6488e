package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/sandsh/sandsh/core/vos"
	"github.com/spf13/afero"
)

const (
	ModeMaskUser  fs.FileMode = 0700
	ModeMaskGroup fs.FileMode = 0070
	ModeMaskOther fs.FileMode = 0007
	ModeMaskAll               = ModeMaskUser | ModeMaskGroup | ModeMaskOther

	ModeRead  fs.FileMode = 0444
	ModeWrite fs.FileMode = 0222
	ModeExec  fs.FileMode = 0111

	ModeSpecial = fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky

	// ChmodMask holds every bit chmod may change.
	ChmodMask = ModeMaskAll | ModeSpecial
)

var errNoAction = errors.New("no action provided")

// octalSpecial maps the leading digit of a four digit octal mode.
var octalSpecial = []struct {
	bit  uint64
	mode fs.FileMode
}{
	{04000, fs.ModeSetuid},
	{02000, fs.ModeSetgid},
	{01000, fs.ModeSticky},
}

func parseOctalMode(mode string, orig fs.FileMode) (fs.FileMode, bool) {
	if mode == "" || len(mode) > 4 {
		return orig, false
	}
	n, err := strconv.ParseUint(mode, 8, 32)
	if err != nil {
		return orig, false
	}

	out := (orig &^ ModeMaskAll) | fs.FileMode(n)&ModeMaskAll

	// Short modes keep the special bits, like GNU chmod does for
	// directories.
	if len(mode) == 4 {
		out &^= ModeSpecial
		for _, s := range octalSpecial {
			if n&s.bit != 0 {
				out |= s.mode
			}
		}
	}
	return out, true
}

// formatOctalMode renders the permission and special bits of m as four octal
// digits.
func formatOctalMode(m fs.FileMode) string {
	n := uint64(m & ModeMaskAll)
	for _, s := range octalSpecial {
		if m&s.mode != 0 {
			n |= s.bit
		}
	}
	return fmt.Sprintf("%04o", n)
}

// copyClass replicates the permission bits of one class in orig across all
// three classes so they can be masked by who.
func copyClass(orig fs.FileMode, class rune) fs.FileMode {
	var bits fs.FileMode
	switch class {
	case 'u':
		bits = (orig & ModeMaskUser) >> 6
	case 'g':
		bits = (orig & ModeMaskGroup) >> 3
	case 'o':
		bits = orig & ModeMaskOther
	}
	return bits | bits<<3 | bits<<6
}

// applyClause applies one symbolic clause such as "ug+rw" or "o=u-x".
func applyClause(clause string, orig fs.FileMode) (fs.FileMode, error) {
	var who fs.FileMode
	rest := clause
classes:
	for ; rest != ""; rest = rest[1:] {
		switch rest[0] {
		case 'a':
			who |= ModeMaskAll
		case 'u':
			who |= ModeMaskUser
		case 'g':
			who |= ModeMaskGroup
		case 'o':
			who |= ModeMaskOther
		default:
			break classes
		}
	}
	explicitWho := who != 0
	if !explicitWho {
		who = ModeMaskAll
	}
	if rest == "" {
		return orig, errNoAction
	}

	mode := orig
	for rest != "" {
		op := rest[0]
		if op != '+' && op != '-' && op != '=' {
			if strings.ContainsRune("rwxXst", rune(op)) {
				return orig, errNoAction
			}
			return orig, fmt.Errorf("unknown symbol %q", rune(op))
		}
		rest = rest[1:]

		var perm, special fs.FileMode
		for rest != "" && !strings.ContainsRune("+-=", rune(rest[0])) {
			switch c := rune(rest[0]); c {
			case 'r':
				perm |= ModeRead
			case 'w':
				perm |= ModeWrite
			case 'x':
				perm |= ModeExec
			case 'X':
				if orig.IsDir() || orig&ModeExec != 0 {
					perm |= ModeExec
				}
			case 's':
				if who&ModeMaskUser != 0 {
					special |= fs.ModeSetuid
				}
				if who&ModeMaskGroup != 0 {
					special |= fs.ModeSetgid
				}
			case 't':
				if !explicitWho || who&ModeMaskOther != 0 {
					special |= fs.ModeSticky
				}
			case 'u', 'g', 'o':
				perm |= copyClass(orig, c)
			default:
				return orig, fmt.Errorf("unknown symbol %q", c)
			}
			rest = rest[1:]
		}

		perm &= who
		switch op {
		case '+':
			mode |= perm | special
		case '-':
			mode &^= perm | special
		case '=':
			mode = (mode &^ who) | perm
			if explicitWho && who&ModeMaskUser != 0 {
				mode &^= fs.ModeSetuid
			}
			if explicitWho && who&ModeMaskGroup != 0 {
				mode &^= fs.ModeSetgid
			}
			mode |= special
		}
	}
	return mode, nil
}

// ChmodApplyMode computes the result of applying a chmod mode expression,
// octal or a comma separated list of symbolic clauses, to orig. Bits outside
// ChmodMask are never changed.
func ChmodApplyMode(mode string, orig fs.FileMode) (fs.FileMode, error) {
	if out, ok := parseOctalMode(mode, orig); ok {
		return out, nil
	}

	out := orig
	for _, clause := range strings.Split(mode, ",") {
		next, err := applyClause(clause, out)
		if err != nil {
			return orig, err
		}
		out = next
	}
	return (orig &^ ChmodMask) | (out & ChmodMask), nil
}

type chmodJob struct {
	virtOS    vos.VOS
	mode      string
	recursive bool
	verbose   bool
	changes   bool
	quiet     bool
}

func (c *chmodJob) report(format string, args ...interface{}) {
	if !c.quiet {
		fmt.Fprintf(c.virtOS.Stderr(), "chmod: "+format+"\n", args...)
	}
}

func (c *chmodJob) change(name string, fi fs.FileInfo) (bool, error) {
	orig := fi.Mode()
	next, err := ChmodApplyMode(c.mode, orig)
	if err != nil {
		return false, err
	}

	changed := next&ChmodMask != orig&ChmodMask
	if changed {
		if err := c.virtOS.Chmod(name, next); err != nil {
			c.report("changing permissions of '%s': %s", name, describeFsError(err))
			return false, nil
		}
	}

	w := c.virtOS.Stdout()
	switch {
	case changed && (c.verbose || c.changes):
		fmt.Fprintf(w, "mode of '%s' changed from %s (%s) to %s (%s)\n",
			name, formatOctalMode(orig), orig.Perm().String()[1:], formatOctalMode(next), next.Perm().String()[1:])
	case !changed && c.verbose:
		fmt.Fprintf(w, "mode of '%s' retained as %s (%s)\n", name, formatOctalMode(orig), orig.Perm().String()[1:])
	}
	return true, nil
}

// run returns false if any path could not be changed.
func (c *chmodJob) run(name string) (bool, error) {
	fi, err := c.virtOS.Stat(name)
	if err != nil {
		c.report("cannot access '%s': %s", name, describeFsError(err))
		return false, nil
	}
	if !c.recursive || !fi.IsDir() {
		return c.change(name, fi)
	}

	ok := true
	walkErr := afero.Walk(c.virtOS, name, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			c.report("cannot access '%s': %s", p, describeFsError(err))
			ok = false
			return nil
		}
		changed, err := c.change(p, info)
		ok = ok && changed
		return err
	})
	return ok, walkErr
}

// Chmod implements a POSIX chmod command with the GNU -R, -v, -c and -f
// options.
//
// Options are recognized by hand because symbolic modes like "-x" look like
// flags.
func Chmod(virtOS vos.VOS) int {
	job := &chmodJob{virtOS: virtOS}

	args := virtOS.Args()[1:]
options:
	for ; len(args) > 0; args = args[1:] {
		switch args[0] {
		case "-R", "--recursive":
			job.recursive = true
		case "-v", "--verbose":
			job.verbose = true
		case "-c", "--changes":
			job.changes = true
		case "-f", "--silent", "--quiet":
			job.quiet = true
		case "--":
			args = args[1:]
			break options
		default:
			break options
		}
	}

	if len(args) < 2 {
		fmt.Fprintln(virtOS.Stderr(), "chmod: missing operand")
		fmt.Fprintln(virtOS.Stderr(), "usage: chmod [-Rcfv] MODE FILE...")
		return 1
	}
	job.mode = args[0]

	status := 0
	for _, name := range args[1:] {
		ok, err := job.run(name)
		if err != nil {
			virtOS.LogInvalidInvocation(err)
			fmt.Fprintf(virtOS.Stderr(), "chmod: invalid mode: '%s'\n", job.mode)
			return 1
		}
		if !ok {
			status = 1
		}
	}
	return status
}

var _ vos.ProcessFunc = Chmod

func init() {
	mustAddBinCmd("chmod", Chmod)
}
