// Package commands holds the programs a sandbox provides. Each one is a
// vos.ProcessFunc registered under /bin and /usr/bin.
package commands

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	getopt "github.com/pborman/getopt/v2"
	"github.com/sandsh/sandsh/core/vos"
)

// AllCommands holds every registered program keyed by absolute path.
var AllCommands = make(map[string]vos.ProcessFunc)

// mustAddBinCmd adds a command under /bin and /usr/bin, it panics if the
// name is already taken.
func mustAddBinCmd(name string, cmd vos.ProcessFunc) {
	for _, dir := range []string{"/bin", "/usr/bin"} {
		p := path.Join(dir, name)
		if _, ok := AllCommands[p]; ok {
			panic(fmt.Sprintf("duplicate command %q", p))
		}
		AllCommands[p] = cmd
	}
}

// Resolve implements vos.ProcessResolver over AllCommands.
func Resolve(p string) vos.ProcessFunc {
	return AllCommands[path.Clean(p)]
}

var _ vos.ProcessResolver = Resolve

// ToolPaths returns the sorted paths of every registered program, suitable
// for vos.Provision.
func ToolPaths() []string {
	out := make([]string, 0, len(AllCommands))
	for p := range AllCommands {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// CommandEntry is one program and every path it is registered at.
type CommandEntry struct {
	Names []string
	Proc  vos.ProcessFunc
}

// Name is the program's base name.
func (e CommandEntry) Name() string {
	return path.Base(e.Names[0])
}

// ListBuiltinCommands groups the registered paths by program name.
func ListBuiltinCommands() []CommandEntry {
	byName := make(map[string]*CommandEntry)
	for _, p := range ToolPaths() {
		name := path.Base(p)
		entry, ok := byName[name]
		if !ok {
			entry = &CommandEntry{Proc: AllCommands[p]}
			byName[name] = entry
		}
		entry.Names = append(entry.Names, p)
	}

	var out []CommandEntry
	for _, entry := range byName {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name() < out[j].Name()
	})
	return out
}

func BytesToHuman(bytes int64) string {
	for _, e := range []struct {
		unit  string
		power int64
	}{
		{"P", 1 << 50},
		{"T", 1 << 40},
		{"G", 1 << 30},
		{"M", 1 << 20},
		{"K", 1 << 10},
	} {
		quotient := bytes / e.power
		switch {
		case quotient == 0:
			continue
		case quotient > 10:
			return fmt.Sprintf("%d%s", quotient, e.unit)
		default:
			return fmt.Sprintf("%0.1f%s", float64(bytes)/float64(e.power), e.unit)
		}
	}

	return fmt.Sprintf("%d", bytes)
}

// UidResolver maps user ids to names using /etc/passwd.
func UidResolver(virtOS vos.VOS) (resolver func(int) string) {
	mapping := map[int]string{
		0: "root", // seed in case we don't see any others.
	}
	if user := virtOS.Getenv("USER"); user != "" {
		mapping[virtOS.Getuid()] = user
	}

	resolver = func(uid int) string {
		if resolved, ok := mapping[uid]; ok {
			return resolved
		}
		return strconv.Itoa(uid)
	}

	fd, err := virtOS.Open("/etc/passwd")
	if err != nil {
		return
	}
	defer fd.Close()

	passwdBytes, err := io.ReadAll(fd)
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(passwdBytes), "\n") {
		entry := strings.Split(line, ":")
		if len(entry) < 3 {
			continue
		}
		// name:X:uid:
		if uid, err := strconv.Atoi(entry[2]); err == nil {
			mapping[uid] = entry[0]
		}
	}

	return
}

type SimpleCommand struct {
	// Use holds a one line usage string
	Use string
	// Short holds a one line description of the command.
	Short string
	// ShowHelp sets whether help is displayed or not.
	// If this is non-nil when Run() is called, then the default help flag isn't
	// added.
	ShowHelp *bool
	// NeverBail skips interacting with stdout/stderr on failure and
	// always runs the callback.
	NeverBail bool

	flags *getopt.Set
}

// Flags gets the command's flag set.
func (s *SimpleCommand) Flags() *getopt.Set {
	if s.flags == nil {
		s.flags = getopt.New()
	}

	return s.flags
}

// PrintHelp writes help for the command to the given writer.
func (s *SimpleCommand) PrintHelp(w io.Writer) {
	fmt.Fprint(w, "usage: ")
	fmt.Fprintln(w, s.Use)
	fmt.Fprintln(w, s.Short)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	s.Flags().PrintOptions(w)
}

// Run the command, if flag parsing was succcessful call the callback.
func (s *SimpleCommand) Run(virtOS vos.VOS, callback func() int) int {
	opts := s.Flags()

	// Add help flag if not overridden.
	if s.ShowHelp == nil {
		s.ShowHelp = opts.BoolLong("help", 'h', "show this help and exit")
	}

	err := opts.Getopt(virtOS.Args(), nil)
	if err != nil {
		virtOS.LogInvalidInvocation(err)
	}

	if err != nil && !s.NeverBail {
		fmt.Fprintf(virtOS.Stderr(), "error: %s\n\n", err)

		s.PrintHelp(virtOS.Stdout())
		return 1
	}

	if *s.ShowHelp {
		s.PrintHelp(virtOS.Stdout())
		return 0
	}

	return callback()
}

// name is the program name the command was invoked as.
func (s *SimpleCommand) name(virtOS vos.VOS) string {
	if args := virtOS.Args(); len(args) > 0 {
		return path.Base(args[0])
	}
	return "?"
}

// LogProgramError writes a "name: error" line to stderr.
func (s *SimpleCommand) LogProgramError(virtOS vos.VOS, err error) {
	fmt.Fprintf(virtOS.Stderr(), "%s: %s\n", s.name(virtOS), err)
}

// RunEachArg parses flags and calls fn for every positional argument. The
// exit status is 1 if any call failed.
func (s *SimpleCommand) RunEachArg(virtOS vos.VOS, fn func(arg string) error) int {
	return s.Run(virtOS, func() int {
		code := 0
		for _, arg := range s.Flags().Args() {
			if err := fn(arg); err != nil {
				s.LogProgramError(virtOS, fmt.Errorf("%s: %w", arg, err))
				code = 1
			}
		}
		return code
	})
}

// RunEachFileOrStdin calls fn with each named file in turn, or with stdin if
// there are none or a name is "-".
func (s *SimpleCommand) RunEachFileOrStdin(virtOS vos.VOS, files []string, fn func(name string, fd io.Reader) error) int {
	if len(files) == 0 {
		files = []string{"-"}
	}

	code := 0
	for _, name := range files {
		if name == "-" {
			if err := fn(name, virtOS.Stdin()); err != nil {
				s.LogProgramError(virtOS, err)
				code = 1
			}
			continue
		}

		fd, err := virtOS.Open(name)
		if err != nil {
			s.LogProgramError(virtOS, fileError(name, err))
			code = 1
			continue
		}
		if info, err := fd.Stat(); err == nil && info.IsDir() {
			fd.Close()
			s.LogProgramError(virtOS, fmt.Errorf("%s: Is a directory", name))
			code = 1
			continue
		}
		err = fn(name, fd)
		fd.Close()
		if err != nil {
			s.LogProgramError(virtOS, fmt.Errorf("%s: %w", name, err))
			code = 1
		}
	}
	return code
}

// fileError describes a filesystem error the way coreutils does.
func fileError(name string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s: No such file or directory", name)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%s: Permission denied", name)
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("%s: File exists", name)
	default:
		return fmt.Errorf("%s: %w", name, err)
	}
}

const (
	colorAlways = "always"
	colorAuto   = "auto"
	colorNever  = "never"
)

var (
	ColorBoldBlue  = color.New(color.FgBlue, color.Bold)
	ColorBoldGreen = color.New(color.FgGreen, color.Bold)
	ColorBoldCyan  = color.New(color.FgCyan, color.Bold)
	ColorBoldRed   = color.New(color.FgRed, color.Bold)
)

type ColorPrinter struct {
	value  *string
	virtOS vos.VOS
}

// Init sets up the flag and virtual OS to determine the color output.
func (c *ColorPrinter) Init(flags *getopt.Set, virtOS vos.VOS) {
	c.virtOS = virtOS
	c.value = flags.EnumLong(
		"color",
		rune(0), // No short flag.
		[]string{colorAlways, colorAuto, colorNever},
		colorAuto,
		"colorize the output (always|auto|never)")
}

// ShouldColor reports whether output should be colored. Output is always
// captured so auto only colors when CLICOLOR_FORCE is set.
func (c *ColorPrinter) ShouldColor() bool {
	switch {
	case *c.value == colorNever:
		return false
	case *c.value == colorAlways:
		return true
	default:
		force := c.virtOS.Getenv("CLICOLOR_FORCE")
		return force != "" && force != "0"
	}
}

func (c *ColorPrinter) Sprintf(clr *color.Color, format string, a ...interface{}) string {
	if c.ShouldColor() {
		clr.EnableColor()
		return clr.Sprintf(format, a...)
	}
	return fmt.Sprintf(format, a...)
}
