package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/sandsh/sandsh/core/vos"
)

var touchDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseTouchDate(s string) (time.Time, error) {
	for _, layout := range touchDateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date format '%s'", s)
}

// parseTouchStamp parses the POSIX -t format [[CC]YY]MMDDhhmm[.SS]. A missing
// year is taken from now.
func parseTouchStamp(s string, now time.Time) (time.Time, error) {
	bad := fmt.Errorf("invalid date format '%s'", s)

	sec := 0
	if len(s) > 3 && s[len(s)-3] == '.' {
		n, err := strconv.Atoi(s[len(s)-2:])
		if err != nil {
			return time.Time{}, bad
		}
		sec, s = n, s[:len(s)-3]
	}
	if _, err := strconv.ParseUint(s, 10, 64); err != nil {
		return time.Time{}, bad
	}

	year := now.Year()
	switch len(s) {
	case 8:
	case 10:
		yy, _ := strconv.Atoi(s[:2])
		// POSIX: 69-99 are 19xx, 00-68 are 20xx.
		if yy >= 69 {
			year = 1900 + yy
		} else {
			year = 2000 + yy
		}
		s = s[2:]
	case 12:
		year, _ = strconv.Atoi(s[:4])
		s = s[4:]
	default:
		return time.Time{}, bad
	}

	field := func(i int) int {
		n, _ := strconv.Atoi(s[i : i+2])
		return n
	}
	month, day, hour, min := field(0), field(2), field(4), field(6)
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || min > 59 || sec > 60 {
		return time.Time{}, bad
	}
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC), nil
}

// Touch implements a POSIX touch command.
//
// Times come from the sandbox clock so runs stay reproducible. The filesystem
// doesn't track access times separately, so -a leaves the modification time
// alone and otherwise has no visible effect.
func Touch(virtOS vos.VOS) int {
	cmd := &SimpleCommand{
		Use:   "touch [-acm] [-r REF | -d DATE | -t STAMP] FILE...",
		Short: "Update the access and modification times of each FILE, creating it if needed.",
	}

	opts := cmd.Flags()
	accessOnly := opts.Bool('a', "change only the access time")
	modifyOnly := opts.Bool('m', "change only the modification time")
	noCreate := opts.BoolLong("no-create", 'c', "do not create any files")
	reference := opts.StringLong("reference", 'r', "", "use this file's times instead of the current time", "REF")
	date := opts.StringLong("date", 'd', "", "parse DATE and use it instead of the current time", "DATE")
	stamp := opts.String('t', "", "use [[CC]YY]MMDDhhmm[.ss] instead of the current time", "STAMP")

	return cmd.Run(virtOS, func() int {
		paths := opts.Args()
		if len(paths) == 0 {
			fmt.Fprintln(virtOS.Stderr(), "touch: missing file operand")
			return 1
		}

		when := time.UnixMilli(int64(virtOS.Host().TimeMs())).UTC()
		var err error
		switch {
		case *reference != "":
			var fi fs.FileInfo
			if fi, err = virtOS.Stat(*reference); err != nil {
				fmt.Fprintf(virtOS.Stderr(), "touch: failed to get attributes of '%s': %s\n", *reference, describeFsError(err))
				return 1
			}
			when = fi.ModTime()
		case *date != "":
			when, err = parseTouchDate(*date)
		case *stamp != "":
			when, err = parseTouchStamp(*stamp, when)
		}
		if err != nil {
			fmt.Fprintf(virtOS.Stderr(), "touch: %s\n", err)
			return 1
		}

		status := 0
		for _, name := range paths {
			mtime := when
			if *accessOnly && !*modifyOnly {
				if fi, err := virtOS.Stat(name); err == nil {
					mtime = fi.ModTime()
				}
			}

			err := virtOS.Chtimes(name, when, mtime)
			switch {
			case errors.Is(err, fs.ErrNotExist) && *noCreate:
			case errors.Is(err, fs.ErrNotExist):
				fd, err := virtOS.Create(name)
				if err != nil {
					fmt.Fprintf(virtOS.Stderr(), "touch: cannot touch '%s': %s\n", name, describeFsError(err))
					status = 1
					continue
				}
				fd.Close()
				virtOS.Chtimes(name, when, when)
			case err != nil:
				fmt.Fprintf(virtOS.Stderr(), "touch: setting times of '%s': %s\n", name, describeFsError(err))
				status = 1
			}
		}
		return status
	})
}

var _ vos.ProcessFunc = Touch

func init() {
	mustAddBinCmd("touch", Touch)
}
