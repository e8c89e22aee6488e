package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sandsh/sandsh/core/vos"
)

// wcStats accumulates counts over a stream. Runes split across writes are
// carried over to the next write.
type wcStats struct {
	name string

	bytes, chars, lines, words, maxLine int

	lineLen int
	inWord  bool
	pending []byte
}

func (w *wcStats) Write(data []byte) (int, error) {
	n := len(data)
	w.bytes += n

	buf := data
	if len(w.pending) > 0 {
		buf = append(w.pending, data...)
		w.pending = nil
	}

	for len(buf) > 0 {
		r, size := utf8.DecodeRune(buf)
		if r == utf8.RuneError && size == 1 && !utf8.FullRune(buf) {
			w.pending = append([]byte(nil), buf...)
			break
		}
		buf = buf[size:]
		w.countRune(r)
	}
	return n, nil
}

func (w *wcStats) countRune(r rune) {
	w.chars++

	switch r {
	case '\n':
		w.lines++
		w.endLine()
	case '\t':
		w.lineLen += 8 - w.lineLen%8
	default:
		if unicode.IsPrint(r) {
			w.lineLen++
		}
	}

	if unicode.IsSpace(r) {
		w.inWord = false
	} else if !w.inWord {
		w.inWord = true
		w.words++
	}
}

func (w *wcStats) endLine() {
	if w.lineLen > w.maxLine {
		w.maxLine = w.lineLen
	}
	w.lineLen = 0
}

// finish flushes a trailing partial rune and an unterminated last line.
func (w *wcStats) finish() {
	for range w.pending {
		w.countRune(utf8.RuneError)
	}
	w.pending = nil
	w.endLine()
}

func (w *wcStats) add(other *wcStats) {
	w.bytes += other.bytes
	w.chars += other.chars
	w.lines += other.lines
	w.words += other.words
	if other.maxLine > w.maxLine {
		w.maxLine = other.maxLine
	}
}

// countStream counts everything in r.
func countStream(name string, r io.Reader) (*wcStats, error) {
	stats := &wcStats{name: name}
	if _, err := io.Copy(stats, r); err != nil {
		return nil, err
	}
	stats.finish()
	return stats, nil
}

type wcColumn func(*wcStats) int

// Wc implements the POSIX command by the same name, plus GNU's -L.
// https://pubs.opengroup.org/onlinepubs/009695399/utilities/wc.html
func Wc(virtOS vos.VOS) int {
	cmd := &SimpleCommand{
		Use:   "wc [-c|-m] [-lwL] [FILE...]",
		Short: "Print newline, word, and byte counts for each FILE, and a total line if more than one FILE is specified.",
	}

	opts := cmd.Flags()
	lines := opts.BoolLong("lines", 'l', "print the newline counts")
	words := opts.BoolLong("words", 'w', "print the word counts")
	bytes := opts.BoolLong("bytes", 'c', "print the byte counts")
	chars := opts.BoolLong("chars", 'm', "print the character counts")
	maxLine := opts.BoolLong("max-line-length", 'L', "print the maximum display width")

	return cmd.Run(virtOS, func() int {
		args := opts.Args()

		defaults := !(*lines || *words || *bytes || *chars || *maxLine)
		var cols []wcColumn
		for _, c := range []struct {
			on  bool
			col wcColumn
		}{
			{*lines || defaults, func(w *wcStats) int { return w.lines }},
			{*words || defaults, func(w *wcStats) int { return w.words }},
			{*chars, func(w *wcStats) int { return w.chars }},
			{*bytes || defaults, func(w *wcStats) int { return w.bytes }},
			{*maxLine, func(w *wcStats) int { return w.maxLine }},
		} {
			if c.on {
				cols = append(cols, c.col)
			}
		}

		total := &wcStats{name: "total"}
		var results []*wcStats
		code := cmd.RunEachFileOrStdin(virtOS, args, func(name string, r io.Reader) error {
			stats, err := countStream(name, r)
			if err != nil {
				return err
			}
			results = append(results, stats)
			total.add(stats)
			return nil
		})
		if len(args) > 1 && len(results) > 0 {
			results = append(results, total)
		}

		// Columns share the width of the widest number so multi-file output
		// lines up.
		width := 1
		if len(cols) > 1 || len(results) > 1 {
			for _, col := range cols {
				if n := len(strconv.Itoa(col(total))); n > width {
					width = n
				}
			}
		}

		for _, stats := range results {
			fields := make([]string, 0, len(cols)+1)
			for _, col := range cols {
				fields = append(fields, fmt.Sprintf("%*d", width, col(stats)))
			}
			if len(args) > 0 {
				fields = append(fields, stats.name)
			}
			fmt.Fprintln(virtOS.Stdout(), strings.Join(fields, " "))
		}
		return code
	})
}

var _ vos.ProcessFunc = Wc

func init() {
	mustAddBinCmd("wc", Wc)
}
