package cmd

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"time"

	"github.com/sandsh/sandsh/core/interp"
	"github.com/sandsh/sandsh/core/logger"
	"github.com/sandsh/sandsh/core/ttylog"
	"github.com/spf13/cobra"
)

var runFlags struct {
	command    string
	timeout    time.Duration
	jsonOutput bool
	record     string
	events     string
}

// runCmd evaluates a script inside a fresh sandbox.
var runCmd = &cobra.Command{
	Use:   "run [-c COMMAND | FILE] [ARG]...",
	Short: "Run a script inside a sandbox.",
	Long: `Run a script inside a sandbox.

The script is taken from -c, from FILE on the local disk or from stdin. It
can only see the sandbox's virtual filesystem and programs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		appLogger := log.New(cmd.ErrOrStderr(), "[sandsh] ", 0)

		cfg, err := loadConfig(appLogger)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("timeout") {
			cfg.Limits.TimeoutMs = uint64(runFlags.timeout / time.Millisecond)
		}

		script, scriptName, positional, err := readScript(cmd, args)
		if err != nil {
			return err
		}

		var opts []interp.Option
		if runFlags.events != "" {
			fd, err := openAppend(runFlags.events)
			if err != nil {
				return err
			}
			defer fd.Close()
			opts = append(opts, interp.WithEventRecorder(logger.NewJsonLinesLogRecorder(fd).NewSession()))
		}

		sess, err := newSession(cfg, appLogger, opts...)
		if err != nil {
			return err
		}
		st := sess.interp.State()
		st.ScriptName = scriptName
		st.Positional = positional

		stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
		if runFlags.record != "" {
			fd, err := os.Create(runFlags.record)
			if err != nil {
				return err
			}
			defer fd.Close()
			recorder := ttylog.NewRecorder(time.Now, ttylog.NewLogSink(runFlags.record, fd))
			defer recorder.Close()
			stdout = recorder.Writer(ttylog.FDStdout, stdout)
			stderr = recorder.Writer(ttylog.FDStderr, stderr)
		}

		res, shellErr := runScript(sess, script, stdinFor(cmd))
		exitCode = res.ExitCode

		if runFlags.jsonOutput {
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}

		io.WriteString(stdout, res.Stdout)
		io.WriteString(stderr, res.Stderr)
		if shellErr != nil {
			appLogger.Printf("evaluation failed: %v", shellErr)
		}
		return nil
	},
}

// readScript picks the script source from -c, a file argument or stdin and
// returns the script, its $0 and the positional parameters.
func readScript(cmd *cobra.Command, args []string) (script, name string, positional []string, err error) {
	switch {
	case cmd.Flags().Changed("command"):
		name = interp.ShellName
		if len(args) > 0 {
			name, args = args[0], args[1:]
		}
		return runFlags.command, name, args, nil

	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", "", nil, err
		}
		return string(data), args[0], args[1:], nil

	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", "", nil, err
		}
		return string(data), interp.ShellName, nil, nil
	}
}

// stdinFor returns what the script's programs see on stdin. Only a -c
// script can read the real stdin, otherwise it holds the script itself.
func stdinFor(cmd *cobra.Command) string {
	if !cmd.Flags().Changed("command") {
		return ""
	}
	if f, ok := cmd.InOrStdin().(*os.File); ok {
		if info, err := f.Stat(); err != nil || info.Mode()&os.ModeCharDevice != 0 {
			return ""
		}
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return ""
	}
	return string(data)
}

// runScript evaluates script and then runs the EXIT trap if the script
// didn't exit on its own. The trap's output is appended to the result.
func runScript(sess *session, script, stdin string) (interp.RunResult, error) {
	res, err := sess.run(script, stdin)
	if sess.interp.Exited() {
		return res, err
	}

	closing := sess.interp.Close()
	res.Stdout += closing.Stdout
	res.Stderr += closing.Stderr
	if err == nil {
		res.ExitCode = closing.ExitCode
	}
	return res, err
}

func init() {
	rootCmd.AddCommand(runCmd)

	flags := runCmd.Flags()
	flags.StringVarP(&runFlags.command, "command", "c", "", "read commands from the COMMAND string")
	flags.DurationVar(&runFlags.timeout, "timeout", 0, "override the configured evaluation timeout (e.g. 3s, 500ms), 0 disables it")
	flags.BoolVar(&runFlags.jsonOutput, "json", false, "print the result as a JSON object")
	flags.StringVar(&runFlags.record, "record", "", "record the session's output to FILE.cast (asciicast) or FILE.log")
	flags.StringVar(&runFlags.events, "events", "", "append the JSON lines event log to FILE")

	// Everything after the script belongs to it.
	flags.SetInterspersed(false)
}
