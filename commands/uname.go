package commands

import (
	"fmt"
	"path"
	"strings"

	"github.com/sandsh/sandsh/core/vos"
	"github.com/spf13/afero"
)

// Kernel describes the system uname reports.
type Kernel struct {
	Sysname         string
	Release         string
	Version         string
	Machine         string
	OperatingSystem string
}

// SandboxKernel is reported unless the root filesystem provides
// /proc/sys/kernel/{ostype,osrelease,version}.
var SandboxKernel = Kernel{
	Sysname:         "Linux",
	Release:         "5.15.0-sandsh",
	Version:         "#1 SMP PREEMPT_DYNAMIC",
	Machine:         "x86_64",
	OperatingSystem: "GNU/Linux",
}

const procKernelDir = "/proc/sys/kernel"

func readKernel(virtOS vos.VOS) Kernel {
	k := SandboxKernel
	for name, field := range map[string]*string{
		"ostype":    &k.Sysname,
		"osrelease": &k.Release,
		"version":   &k.Version,
	} {
		if data, err := afero.ReadFile(virtOS, path.Join(procKernelDir, name)); err == nil {
			if v := strings.TrimSpace(string(data)); v != "" {
				*field = v
			}
		}
	}
	return k
}

// Uname implements the POSIX command by the same name with GNU's -o, -p and
// -i. The latter two are unknown and left out of -a.
func Uname(virtOS vos.VOS) int {
	cmd := &SimpleCommand{
		Use:   "uname [-asnrvmpio]",
		Short: "Print certain system information. With no OPTION, same as -s.",
	}

	opts := cmd.Flags()
	all := opts.BoolLong("all", 'a', "print all information, omitting -p and -i if unknown")
	kernelName := opts.BoolLong("kernel-name", 's', "print the kernel name")
	nodename := opts.BoolLong("nodename", 'n', "print the network node hostname")
	release := opts.BoolLong("kernel-release", 'r', "print the kernel release")
	version := opts.BoolLong("kernel-version", 'v', "print the kernel version")
	machine := opts.BoolLong("machine", 'm', "print the machine hardware name")
	processor := opts.BoolLong("processor", 'p', "print the processor type")
	platform := opts.BoolLong("hardware-platform", 'i', "print the hardware platform")
	osName := opts.BoolLong("operating-system", 'o', "print the operating system")

	return cmd.Run(virtOS, func() int {
		k := readKernel(virtOS)
		host, err := virtOS.Hostname()
		if err != nil {
			host = "localhost"
		}

		fields := []struct {
			on    bool
			value string
		}{
			{*all || *kernelName, k.Sysname},
			{*all || *nodename, host},
			{*all || *release, k.Release},
			{*all || *version, k.Version},
			{*all || *machine, k.Machine},
			{*processor, "unknown"},
			{*platform, "unknown"},
			{*all || *osName, k.OperatingSystem},
		}

		var out []string
		for _, f := range fields {
			if f.on {
				out = append(out, f.value)
			}
		}
		if len(out) == 0 {
			out = append(out, k.Sysname)
		}

		fmt.Fprintln(virtOS.Stdout(), strings.Join(out, " "))
		return 0
	})
}

var _ vos.ProcessFunc = Uname

func init() {
	mustAddBinCmd("uname", Uname)
}
