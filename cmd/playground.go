package cmd

import (
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/abiosoft/readline"
	"github.com/fatih/color"
	"github.com/sandsh/sandsh/core/config"
	"github.com/sandsh/sandsh/core/interp"
	"github.com/sandsh/sandsh/core/logger"
	"github.com/sandsh/sandsh/core/ttylog"
	"github.com/spf13/cobra"
)

var playgroundLog bool

var (
	promptUser = color.New(color.FgGreen, color.Bold)
	promptDir  = color.New(color.FgBlue, color.Bold)
	promptFail = color.New(color.FgRed)
)

// prompt renders a bash-like prompt for the session's current state.
func prompt(cfg *config.Configuration, st *interp.State) string {
	dir := st.Cwd
	if home := st.Env["HOME"]; home != "" && strings.HasPrefix(dir, home) {
		dir = "~" + strings.TrimPrefix(dir, home)
	}

	var status string
	if st.LastExitCode != 0 {
		status = promptFail.Sprintf("[%d]", st.LastExitCode)
	}

	user := st.Env["USER"]
	return fmt.Sprintf("%s%s:%s$ ",
		status,
		promptUser.Sprintf("%s@%s", user, cfg.Sandbox.Hostname),
		promptDir.Sprint(dir))
}

// playgroundCmd runs an interactive shell over a sandbox for testing
var playgroundCmd = &cobra.Command{
	Use:   "playground",
	Short: "Run an interactive shell inside a sandbox.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		playgroundLogger := log.New(cmd.ErrOrStderr(), "[playground] ", 0)
		cfg, err := loadConfig(playgroundLogger)
		if err != nil {
			return err
		}

		var opts []interp.Option
		stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
		if playgroundLog {
			appLog, err := cfg.OpenAppLog()
			if err != nil {
				return err
			}
			defer appLog.Close()
			events := logger.NewJsonLinesLogRecorder(appLog).NewSession()
			opts = append(opts, interp.WithEventRecorder(events))

			ttyLog, err := cfg.CreateSessionLog(events.ID() + "." + ttylog.AsciicastFileExt)
			if err != nil {
				return err
			}
			defer ttyLog.Close()
			recorder := ttylog.NewRecorder(time.Now, ttylog.NewLogSink(ttyLog.Name(), ttyLog))
			defer recorder.Close()
			stdout = recorder.Writer(ttylog.FDStdout, stdout)
			stderr = recorder.Writer(ttylog.FDStderr, stderr)

			playgroundLogger.Printf("Logging session %s to: %s", events.ID(), ttyLog.Name())
		}

		sess, err := newSession(cfg, playgroundLogger, opts...)
		if err != nil {
			return err
		}

		rl, err := readline.NewEx(&readline.Config{
			Stdin:           readline.NewCancelableStdin(cmd.InOrStdin()),
			Stdout:          stdout,
			Stderr:          stderr,
			InterruptPrompt: "^C",
		})
		if err != nil {
			return err
		}
		defer rl.Close()

		playgroundLogger.Println(strings.Repeat("=", 80))

		for !sess.interp.Exited() {
			rl.SetPrompt(prompt(cfg, sess.interp.State()))
			line, err := rl.Readline()

			switch {
			case err == io.EOF:
				// Input closed, quit.
				closing := sess.interp.Close()
				io.WriteString(stdout, closing.Stdout)
				io.WriteString(stderr, closing.Stderr)
				exitCode = closing.ExitCode
				return nil

			case err == readline.ErrInterrupt:
				// Interrupt clears line.
				continue

			case err != nil:
				playgroundLogger.Printf("Error readline: %v", err)
				continue

			case strings.TrimSpace(line) == "":
				continue
			}

			res, _ := sess.run(line, "")
			io.WriteString(stdout, res.Stdout)
			io.WriteString(stderr, res.Stderr)
			exitCode = res.ExitCode
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(playgroundCmd)
	playgroundCmd.Flags().BoolVar(&playgroundLog, "log", false, "record events and output to the configuration directory")
}
