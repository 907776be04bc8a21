package protocol

import (
	"bytes"
	"context"
	"os/exec"
	"runtime"
	"strings"

	"codeberg.org/mutker/hostmon/internal/errors"
)

// LocalCommand runs command lines in the agent's own shell.
type LocalCommand struct{}

func (LocalCommand) Execute(ctx context.Context, _ Target, q Query) (Result, error) {
	errFactory := errors.New()

	if q.Operation != OpCommand {
		return Result{}, errFactory.WithData(ErrUnsupported, string(q.Operation))
	}

	if runtime.GOOS == "windows" {
		return runCommand(exec.CommandContext(ctx, "cmd", "/C", q.Text), q.Text)
	}
	return runCommand(exec.CommandContext(ctx, "/bin/sh", "-c", q.Text), q.Text)
}

// runCommand runs cmd and returns its standard output as lines. A failure
// carries the standard error, or text when it is empty.
func runCommand(cmd *exec.Cmd, text string) (Result, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = text
		}
		return Result{}, errors.New().Wrap(ErrExecution, err).WithData(msg)
	}
	return LinesResult(stdout.String()), nil
}

// LinesResult returns raw with one single-cell row per line.
func LinesResult(raw string) Result {
	rows := [][]string{}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		rows = append(rows, []string{line})
	}
	return Result{Raw: raw, Rows: rows}
}
