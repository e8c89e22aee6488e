package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sandsh/sandsh/core/host"
	"github.com/sandsh/sandsh/core/vos"
)

// sleepSlice bounds how long sleep goes without checking for cancellation.
const sleepSlice = 10 * time.Millisecond

var sleepUnits = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
}

// parseSleepInterval parses a GNU sleep operand: a non-negative decimal
// number with an optional s, m, h or d suffix.
func parseSleepInterval(arg string) (time.Duration, error) {
	unit := time.Second
	num := arg
	if n := len(arg); n > 0 {
		if u, ok := sleepUnits[arg[n-1]]; ok {
			unit, num = u, arg[:n-1]
		}
	}

	f, err := strconv.ParseFloat(num, 64)
	if err != nil || f < 0 || strings.ContainsAny(num, "eEnNiIxX") {
		return 0, fmt.Errorf("invalid time interval '%s'", arg)
	}
	return time.Duration(f * float64(unit)), nil
}

// Sleep implements sleep. The sum of all operands is waited out in short
// slices so a cancelled or timed out run stops promptly.
func Sleep(virtOS vos.VOS) int {
	cmd := &SimpleCommand{
		Use:   "sleep NUMBER[SUFFIX]...",
		Short: "Pause for the sum of the given intervals. SUFFIX may be s, m, h, or d.",
	}

	return cmd.Run(virtOS, func() int {
		args := cmd.Flags().Args()
		if len(args) == 0 {
			fmt.Fprintln(virtOS.Stderr(), "sleep: missing operand")
			return 1
		}

		var total time.Duration
		for _, arg := range args {
			d, err := parseSleepInterval(arg)
			if err != nil {
				cmd.LogProgramError(virtOS, err)
				return 1
			}
			total += d
		}

		deadline := time.Now().Add(total)
		for {
			if virtOS.Host().CheckCancel() != host.Running {
				return 1
			}
			left := time.Until(deadline)
			if left <= 0 {
				return 0
			}
			if left > sleepSlice {
				left = sleepSlice
			}
			time.Sleep(left)
		}
	})
}

var _ vos.ProcessFunc = Sleep

func init() {
	mustAddBinCmd("sleep", Sleep)
}
