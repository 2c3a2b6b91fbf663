package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/bookforge/pipeline-go/engine"
	"github.com/bookforge/pipeline-go/faults"
	"github.com/bookforge/pipeline-go/internal/config"
)

// exitTempFail is the sysexits EX_TEMPFAIL code; adapter commands exit
// with it to request a retry regardless of their stderr wording.
const exitTempFail = 75

// buildSteps turns the configured step list into engine steps backed by
// external adapter commands. The command receives the step, provider,
// and subitem through BOOKPIPE_* environment variables and prints the
// step result on stdout.
func buildSteps(cfg *config.Config) ([]engine.Step, error) {
	if len(cfg.Steps) == 0 {
		return nil, fmt.Errorf("config defines no steps")
	}

	steps := make([]engine.Step, 0, len(cfg.Steps))
	for _, sc := range cfg.Steps {
		if len(sc.Command) == 0 {
			return nil, fmt.Errorf("step %q: command is required", sc.Name)
		}
		step := engine.Step{
			Name:         sc.Name,
			Provider:     sc.Provider,
			MinResultLen: sc.MinResultLen,
		}
		command := sc.Command
		name := sc.Name
		if len(sc.Items) > 0 {
			step.Items = sc.Items
			step.RunItem = func(ctx context.Context, providerName, item string) (string, error) {
				return runCommand(ctx, command, name, providerName, item)
			}
		} else {
			step.Run = func(ctx context.Context, providerName string) (string, error) {
				return runCommand(ctx, command, name, providerName, "")
			}
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func runCommand(ctx context.Context, command []string, step, providerName, item string) (string, error) {
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Env = append(os.Environ(),
		"BOOKPIPE_STEP="+step,
		"BOOKPIPE_PROVIDER="+providerName,
		"BOOKPIPE_ITEM="+item,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == exitTempFail {
			return "", faults.Newf(faults.TransientNetwork, "command %s: %s", command[0], detail)
		}
		return "", fmt.Errorf("command %s: %s", command[0], detail)
	}
	return stdout.String(), nil
}
