package protocol

import (
	"context"
	"os/exec"
	"strconv"

	"codeberg.org/mutker/hostmon/internal/errors"
)

const defaultSSHBinary = "ssh"

// SSHCommand runs command lines on remote hosts through the system ssh
// client in batch mode. Authentication relies on the agent user's keys; a
// configured password is not used.
type SSHCommand struct {
	// Binary is the ssh client to run. Empty means "ssh" from PATH.
	Binary string
}

func (s SSHCommand) Execute(ctx context.Context, target Target, q Query) (Result, error) {
	if q.Operation != OpCommand {
		return Result{}, errors.New().WithData(ErrUnsupported, string(q.Operation))
	}

	binary := s.Binary
	if binary == "" {
		binary = defaultSSHBinary
	}
	return runCommand(exec.CommandContext(ctx, binary, SSHArgs(target, q.Text)...), q.Text)
}

// SSHArgs returns the ssh client arguments running command on target.
func SSHArgs(target Target, command string) []string {
	args := []string{"-o", "BatchMode=yes"}
	if target.Config.Timeout > 0 {
		args = append(args, "-o", "ConnectTimeout="+strconv.Itoa(int(target.Config.Timeout.Seconds())))
	}
	if target.Config.Port > 0 {
		args = append(args, "-p", strconv.Itoa(target.Config.Port))
	}

	host := target.Hostname
	if target.Config.Username != "" {
		host = target.Config.Username + "@" + host
	}
	return append(args, host, "--", command)
}
