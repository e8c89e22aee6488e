package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/sandsh/sandsh/core/vos"
)

// errQuitEarly stops reading input once the outcome of grep is known.
var errQuitEarly = errors.New("quit")

type grepJob struct {
	regex *regexp.Regexp

	invert, lineNumbers, count, quiet, onlyMatching, listFiles, showNames bool

	matched bool
}

// compileGrepPattern builds one regexp from a newline separated list of
// patterns.
func compileGrepPattern(patterns string, fixed, ignoreCase, words, lines bool) (*regexp.Regexp, error) {
	alts := strings.Split(patterns, "\n")
	for i, p := range alts {
		if fixed {
			p = regexp.QuoteMeta(p)
		}
		switch {
		case lines:
			p = `^(?:` + p + `)$`
		case words:
			p = `\b(?:` + p + `)\b`
		}
		alts[i] = p
	}

	expr := alts[0]
	if len(alts) > 1 {
		expr = "(?:" + strings.Join(alts, ")|(?:") + ")"
	}
	if ignoreCase {
		expr = "(?i)" + expr
	}
	return regexp.Compile(expr)
}

func (g *grepJob) search(w io.Writer, name string, r io.Reader) error {
	prefix := func(lineNo int) {
		if g.showNames {
			fmt.Fprintf(w, "%s:", name)
		}
		if g.lineNumbers {
			fmt.Fprintf(w, "%d:", lineNo)
		}
	}

	scanner := bufio.NewScanner(r)
	selected := 0
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := scanner.Bytes()
		if g.regex.Match(line) == g.invert {
			continue
		}
		selected++
		g.matched = true

		switch {
		case g.quiet:
			return errQuitEarly
		case g.listFiles:
			fmt.Fprintln(w, name)
			return nil
		case g.count:
		case g.onlyMatching && !g.invert:
			for _, m := range g.regex.FindAll(line, -1) {
				if len(m) > 0 {
					prefix(lineNo)
					fmt.Fprintf(w, "%s\n", m)
				}
			}
		default:
			prefix(lineNo)
			fmt.Fprintf(w, "%s\n", line)
		}
	}

	if g.count {
		if g.showNames {
			fmt.Fprintf(w, "%s:", name)
		}
		fmt.Fprintln(w, selected)
	}
	return scanner.Err()
}

// Grep implements the POSIX grep command with GNU's -o and -w.
//
// https://pubs.opengroup.org/onlinepubs/9699919799.2018edition/utilities/grep.html
func Grep(virtOS vos.VOS) int {
	cmd := &SimpleCommand{
		Use:   "grep [-EFcilnoqvwx] PATTERNS [FILE]...",
		Short: "Search for PATTERNS in each FILE. PATTERNS is one or more newline separated patterns.",
	}

	opts := cmd.Flags()
	opts.BoolLong("extended-regexp", 'E', "PATTERNS are extended regular expressions")
	fixed := opts.BoolLong("fixed-strings", 'F', "PATTERNS are strings")
	ignoreCase := opts.BoolLong("ignore-case", 'i', "ignore case distinctions in patterns and data")
	words := opts.BoolLong("word-regexp", 'w', "match only whole words")
	lines := opts.BoolLong("line-regexp", 'x', "match only whole lines")
	invert := opts.BoolLong("invert-match", 'v', "select non-matching lines")
	lineNumbers := opts.BoolLong("line-number", 'n', "print line number with output lines")
	count := opts.BoolLong("count", 'c', "print only a count of selected lines per FILE")
	listFiles := opts.BoolLong("files-with-matches", 'l', "print only names of FILEs with selected lines")
	onlyMatching := opts.BoolLong("only-matching", 'o', "show only nonempty parts of lines that match")
	quiet := opts.BoolLong("quiet", 'q', "suppress all normal output")

	return cmd.Run(virtOS, func() int {
		args := opts.Args()
		if len(args) == 0 {
			cmd.LogProgramError(virtOS, errors.New("missing argument PATTERN"))
			return 2
		}

		regex, err := compileGrepPattern(args[0], *fixed, *ignoreCase, *words, *lines)
		if err != nil {
			cmd.LogProgramError(virtOS, err)
			return 2
		}

		files := args[1:]
		job := &grepJob{
			regex:        regex,
			invert:       *invert,
			lineNumbers:  *lineNumbers,
			count:        *count,
			quiet:        *quiet,
			onlyMatching: *onlyMatching,
			listFiles:    *listFiles,
			showNames:    len(files) > 1,
		}

		code := 0
		for _, name := range orStdin(files) {
			status := cmd.RunEachFileOrStdin(virtOS, []string{name}, func(name string, r io.Reader) error {
				if name == "-" {
					name = "(standard input)"
				}
				err := job.search(virtOS.Stdout(), name, r)
				if errors.Is(err, errQuitEarly) {
					return nil
				}
				return err
			})
			if status != 0 {
				code = status
			}
			if job.quiet && job.matched {
				return 0
			}
		}

		switch {
		case code != 0:
			return 2
		case !job.matched:
			return 1
		default:
			return 0
		}
	})
}

func orStdin(files []string) []string {
	if len(files) == 0 {
		return []string{"-"}
	}
	return files
}

var _ vos.ProcessFunc = Grep

func init() {
	mustAddBinCmd("grep", Grep)
}
