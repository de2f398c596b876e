package backend

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"completions-gateway/internal/config"
)

// CommandBackend runs a local program such as `claude -p`. The user
// instruction is written to stdin and stdout is the reply. model_flag and
// system_flag, when set, are appended with the route model and the system
// directive.
type CommandBackend struct{}

// waitDelay bounds how long Wait blocks on output pipes held open by
// grandchildren after the command is killed.
const waitDelay = 2 * time.Second

func NewCommandBackend() *CommandBackend {
	return &CommandBackend{}
}

func (b *CommandBackend) Complete(ctx context.Context, call Call) (string, error) {
	params := call.Route.Params
	if params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, params.Command[0], commandArgs(params, call.Instruction.System)...)
	cmd.Stdin = strings.NewReader(call.Instruction.User)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &Error{Backend: config.BackendCommand, Message: "command timed out", Timeout: true, Err: ctx.Err()}
		}
		message := strings.TrimSpace(stderr.String())
		if message == "" {
			message = err.Error()
		}
		return "", &Error{Backend: config.BackendCommand, Message: message, Err: err}
	}
	return stdout.String(), nil
}

func commandArgs(params config.UpstreamParams, system string) []string {
	args := append([]string{}, params.Command[1:]...)
	if params.ModelFlag != "" && params.Model != "" {
		args = append(args, params.ModelFlag, params.Model)
	}
	if params.SystemFlag != "" && system != "" {
		args = append(args, params.SystemFlag, system)
	}
	return args
}
