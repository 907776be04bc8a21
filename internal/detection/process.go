package detection

import (
	"context"

	"codeberg.org/mutker/hostmon/internal/errors"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessLister returns the command lines of the local processes.
type ProcessLister interface {
	CommandLines(ctx context.Context) ([]string, error)
}

// SystemProcesses lists processes of the machine the agent runs on.
type SystemProcesses struct{}

func (SystemProcesses) CommandLines(ctx context.Context) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, errors.New().Wrap(ErrListProcesses, err)
	}

	lines := make([]string, 0, len(procs))
	for _, p := range procs {
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil || cmdline == "" {
			// Exited meanwhile, or a kernel thread: fall back to the name.
			if cmdline, err = p.NameWithContext(ctx); err != nil {
				continue
			}
		}
		lines = append(lines, cmdline)
	}
	return lines, nil
}
