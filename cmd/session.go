package cmd

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/sandsh/sandsh/commands"
	"github.com/sandsh/sandsh/core/config"
	"github.com/sandsh/sandsh/core/interp"
	"github.com/sandsh/sandsh/core/vos"
)

// session is one interpreter bound to a fresh sandbox.
type session struct {
	cfg     *config.Configuration
	sandbox *vos.Sandbox
	interp  *interp.Interpreter
}

// newSession builds the image described by cfg, overlays a sandbox on it and
// starts an interpreter there. extra options are applied after the
// configured defaults.
func newSession(cfg *config.Configuration, logger *log.Logger, extra ...interp.Option) (*session, error) {
	image, err := cfg.NewImage(commands.Resolve, commands.ToolPaths(), time.Now)
	if err != nil {
		return nil, err
	}
	sandbox := vos.NewSandbox(image, cfg.SandboxOptions(logger))

	opts := append([]interp.Option{interp.WithDefaults(cfg.InterpreterDefaults())}, extra...)
	return &session{
		cfg:     cfg,
		sandbox: sandbox,
		interp:  interp.New(sandbox, opts...),
	}, nil
}

// run evaluates one command line under the configured timeout.
func (s *session) run(line, stdin string) (interp.RunResult, error) {
	ctx := context.Background()
	if timeout := s.cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	s.sandbox.Arm(ctx)
	defer s.sandbox.Arm(context.Background())

	return s.interp.RunStdin(line, stdin)
}

// openAppend opens a local log file for appending.
func openAppend(name string) (*os.File, error) {
	return os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}
