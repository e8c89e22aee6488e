package commands

import (
	"fmt"
	"io/fs"
	"math"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	fcolor "github.com/fatih/color"
	getopt "github.com/pborman/getopt/v2"
	"github.com/sandsh/sandsh/core/vos"
	"github.com/spf13/afero"
)

// defaultLsWidth is used when COLUMNS isn't set, output is never a terminal.
const defaultLsWidth = 80

// Ls implements the UNIX ls command.
func Ls(virtOS vos.VOS) int {
	width := defaultLsWidth
	if cols, err := strconv.Atoi(virtOS.Getenv("COLUMNS")); err == nil && cols >= 0 {
		width = cols
	}

	opts := getopt.New()
	listAll := opts.Bool('a', "don't ignore entries starting with .")
	longListing := opts.Bool('l', "use a long listing format")
	onePerLine := opts.Bool('1', "list one file per line")
	dirsOnly := opts.Bool('d', "list directories themselves, not their contents")
	humanSize := opts.BoolLong("human-readable", 'h', "print human readable sizes")
	lineWidth := opts.IntLong("width", 'w', width, "set the column width, 0 is infinite")
	helpOpt := opts.BoolLong("help", '?', "show help and exit")

	var color ColorPrinter
	color.Init(opts, virtOS)

	if err := opts.Getopt(virtOS.Args(), nil); err != nil || *helpOpt {
		w := virtOS.Stderr()
		if err != nil {
			virtOS.LogInvalidInvocation(err)
			fmt.Fprintln(w, err)
		}
		fmt.Fprintln(w, "Usage: ls [OPTION]... [FILE]...")
		fmt.Fprintln(w, "List information about the FILEs (the current directory by default).")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Flags:")
		opts.PrintOptions(w)
		if err != nil {
			return 2
		}
		return 0
	}

	targets := opts.Args()
	if len(targets) == 0 {
		targets = append(targets, ".")
	}
	sort.Strings(targets)

	if *lineWidth == 0 {
		*lineWidth = math.MaxInt32
	}

	l := &lister{
		virtOS:   virtOS,
		color:    &color,
		long:     *longListing,
		width:    *lineWidth,
		owner:    UidResolver(virtOS)(virtOS.Getuid()),
		thisYear: time.UnixMilli(int64(virtOS.Host().TimeMs())).UTC().Year(),
		sizeFmt:  func(bytes int64) string { return fmt.Sprintf("%d", bytes) },
	}
	if *onePerLine {
		l.width = 1
	}
	if *humanSize {
		l.sizeFmt = BytesToHuman
	}

	exitCode := 0

	// Plain files are listed together before any directory.
	var files []namedInfo
	var dirs []string
	for _, target := range targets {
		fi, err := lstat(virtOS, target)
		if err != nil {
			fmt.Fprintf(virtOS.Stderr(), "ls: cannot access '%s': %s\n", target, describeFsError(err))
			exitCode = 2
			continue
		}
		if fi.Mode()&fs.ModeSymlink != 0 && !*longListing {
			if resolved, err := virtOS.Stat(target); err == nil {
				fi = resolved
			}
		}
		if fi.IsDir() && !*dirsOnly {
			dirs = append(dirs, target)
			continue
		}
		files = append(files, namedInfo{name: target, FileInfo: fi})
	}

	if len(files) > 0 {
		l.print("", files)
	}

	showDirectoryNames := len(targets) > 1
	for i, directory := range dirs {
		entries, err := l.readDir(directory, *listAll)
		if err != nil {
			fmt.Fprintf(virtOS.Stderr(), "ls: cannot open directory '%s': %s\n", directory, describeFsError(err))
			exitCode = 2
			continue
		}

		if len(files) > 0 || i > 0 {
			fmt.Fprintln(virtOS.Stdout())
		}
		if showDirectoryNames {
			fmt.Fprintf(virtOS.Stdout(), "%s:\n", directory)
		}
		if *longListing {
			var totalSize int64
			for _, e := range entries {
				totalSize += e.Size()
			}
			fmt.Fprintf(virtOS.Stdout(), "total %s\n", l.sizeFmt(totalSize))
		}
		l.print(directory, entries)
	}

	return exitCode
}

// namedInfo is a FileInfo displayed under the name it was listed by.
type namedInfo struct {
	os.FileInfo
	name string
}

type lister struct {
	virtOS   vos.VOS
	color    *ColorPrinter
	long     bool
	width    int
	owner    string
	thisYear int
	sizeFmt  func(int64) string
}

// readDir returns the sorted entries of a directory using lstat semantics.
func (l *lister) readDir(directory string, all bool) ([]namedInfo, error) {
	names, err := afero.ReadDir(l.virtOS, directory)
	if err != nil {
		return nil, err
	}

	var out []namedInfo
	if all {
		for _, special := range []string{".", ".."} {
			if fi, err := l.virtOS.Stat(path.Join(directory, special)); err == nil {
				out = append(out, namedInfo{name: special, FileInfo: fi})
			}
		}
	}
	for _, entry := range names {
		if !all && strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		fi, err := lstat(l.virtOS, path.Join(directory, entry.Name()))
		if err != nil {
			fi = entry
		}
		out = append(out, namedInfo{name: entry.Name(), FileInfo: fi})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].name < out[j].name
	})
	return out, nil
}

func (l *lister) print(directory string, entries []namedInfo) {
	w := l.virtOS.Stdout()
	if l.long {
		l.printLong(directory, entries)
		return
	}

	colWidths := columnize(entries, l.width)
	cols := len(colWidths)
	rows := len(entries) / cols
	if len(entries)%cols > 0 {
		rows++
	}

	for row := 0; row < rows; row++ {
		var line strings.Builder
		for col, width := range colWidths {
			index := (col * rows) + row
			if index >= len(entries) {
				break
			}
			// Add padding if there was a column before this.
			if col > 0 {
				line.WriteString("  ")
			}
			entry := entries[index]
			line.WriteString(l.color.Sprintf(Dircolor(entry), "%s", entry.name))
			if pad := width - len(entry.name); pad > 0 && index+rows < len(entries) {
				line.WriteString(strings.Repeat(" ", pad))
			}
		}
		fmt.Fprintln(w, line.String())
	}
}

func (l *lister) printLong(directory string, entries []namedInfo) {
	type row struct {
		mode, links, size, modTime, name string
	}

	var rows []row
	linkWidth, sizeWidth := 0, 0
	for _, f := range entries {
		hardLinks := 1
		if f.IsDir() {
			hardLinks = 2
		}

		// Include time if current year.
		modTime := f.ModTime().UTC().Format("Jan _2  2006")
		if f.ModTime().UTC().Year() >= l.thisYear {
			modTime = f.ModTime().UTC().Format("Jan _2 15:04")
		}

		name := l.color.Sprintf(Dircolor(f), "%s", f.name)
		if f.Mode()&fs.ModeSymlink != 0 {
			if target, err := readlink(l.virtOS, path.Join(directory, f.name)); err == nil {
				name += " -> " + target
			}
		}

		r := row{
			mode:    modeString(f.Mode()),
			links:   strconv.Itoa(hardLinks),
			size:    l.sizeFmt(f.Size()),
			modTime: modTime,
			name:    name,
		}
		if n := len(r.links); n > linkWidth {
			linkWidth = n
		}
		if n := len(r.size); n > sizeWidth {
			sizeWidth = n
		}
		rows = append(rows, r)
	}

	w := l.virtOS.Stdout()
	for _, r := range rows {
		fmt.Fprintf(w, "%s %*s %s %s %*s %s %s\n",
			r.mode, linkWidth, r.links, l.owner, l.owner, sizeWidth, r.size, r.modTime, r.name)
	}
}

// modeString formats a mode the way ls does, e.g. "drwxr-xr-x".
func modeString(mode fs.FileMode) string {
	kind := "-"
	switch {
	case mode&fs.ModeSymlink != 0:
		kind = "l"
	case mode.IsDir():
		kind = "d"
	case mode&fs.ModeNamedPipe != 0:
		kind = "p"
	case mode&fs.ModeCharDevice != 0:
		kind = "c"
	case mode&fs.ModeDevice != 0:
		kind = "b"
	case mode&fs.ModeSocket != 0:
		kind = "s"
	}
	return kind + mode.Perm().String()[1:]
}

// lstat stats a path without following a final symlink.
func lstat(virtOS vos.VOS, name string) (os.FileInfo, error) {
	if lstater, ok := virtOS.(afero.Lstater); ok {
		fi, _, err := lstater.LstatIfPossible(name)
		return fi, err
	}
	return virtOS.Stat(name)
}

func readlink(virtOS vos.VOS, name string) (string, error) {
	if reader, ok := virtOS.(afero.LinkReader); ok {
		return reader.ReadlinkIfPossible(name)
	}
	return "", afero.ErrNoReadlink
}

// describeFsError renders the cause of a filesystem error without the path.
func describeFsError(err error) string {
	return strings.TrimPrefix(fileError("", err).Error(), ": ")
}

type LsColorTest struct {
	color *fcolor.Color
	test  func(fileInfo os.FileInfo) bool
}

// Color listing comes from: https://askubuntu.com/a/884513
var dircolors = []LsColorTest{
	// Symlinks are bold cyan.
	{color: ColorBoldCyan, test: func(fi os.FileInfo) bool {
		return fi.Mode()&fs.ModeSymlink > 0
	}},
	// Directories are bold blue.
	{color: ColorBoldBlue, test: os.FileInfo.IsDir},
	// Yellow with black background pipe, block device, char device.
	{color: fcolor.New(fcolor.FgYellow, fcolor.BgBlack, fcolor.Bold), test: func(fi os.FileInfo) bool {
		return fi.Mode()&(fs.ModeDevice|fs.ModeNamedPipe|fs.ModeSocket|fs.ModeCharDevice) > 0
	}},
	// Executables are bold green.
	{color: ColorBoldGreen, test: func(fi os.FileInfo) bool {
		return fi.Mode().Perm()&0111 > 0
	}},
	// Archives are bold red.
	{color: ColorBoldRed, test: func(fi os.FileInfo) bool {
		return map[string]bool{
			".tar": true,
			".tgz": true,
			".zip": true,
			".gz":  true,
			".bz2": true,
			".bz":  true,
			".tbz": true,
			".deb": true,
			".rpm": true,
			".jar": true,
			".war": true,
			".rar": true,
		}[path.Ext(fi.Name())]
	}},
}

func Dircolor(fileInfo os.FileInfo) *fcolor.Color {
	for _, dc := range dircolors {
		if dc.test(fileInfo) {
			return dc.color
		}
	}

	// Anything else defaults to white.
	return fcolor.New(fcolor.FgHiWhite)
}

// columnize finds the widest layout, filled column first, that fits the
// names into screenWidth. It returns the width of each column.
func columnize(entries []namedInfo, screenWidth int) []int {
	numFiles := len(entries)
	if numFiles == 0 {
		return []int{0}
	}

	const colPadding = 2

	// 3 is the minimum column width, 1 char filename + 2 padding.
	columns := screenWidth / (1 + colPadding)
	if columns > numFiles {
		columns = numFiles
	}
	if columns < 1 {
		columns = 1
	}

	var maximums []int // Holds maximum size of a name in the column.
	for ; columns >= 1; columns-- {
		rows := numFiles / columns
		if numFiles%columns > 0 {
			rows++
		}
		// Skip layouts that would leave a trailing column empty.
		if (numFiles+rows-1)/rows < columns {
			continue
		}

		maximums = make([]int, columns)
		for i, e := range entries {
			if l := len(e.name); l > maximums[i/rows] {
				maximums[i/rows] = l
			}
		}

		total := (columns - 1) * colPadding
		for _, m := range maximums {
			total += m
		}
		if total <= screenWidth {
			return maximums
		}
	}

	return maximums
}

var _ vos.ProcessFunc = Ls

func init() {
	mustAddBinCmd("ls", Ls)
}
