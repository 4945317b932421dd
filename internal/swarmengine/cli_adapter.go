package swarmengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"swarmbender/pkg/log"
)

// CLIAdapter shells out to the docker CLI's `secret` subcommands. It
// satisfies the same Adapter contract as DockerAPIAdapter, including
// treating "already exists" on stderr as an idempotent success.
type CLIAdapter struct {
	// BinaryPath defaults to "docker".
	BinaryPath string
	// Run executes a command and returns its stdout, stderr and error; it is
	// overridable so tests don't need a real docker binary on PATH. It backs
	// ls, inspect and rm; EnsureCreated pipes the value on stdin and always
	// executes the binary directly.
	Run func(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

func (a *CLIAdapter) binary() string {
	if a.BinaryPath == "" {
		return "docker"
	}
	return a.BinaryPath
}

func (a *CLIAdapter) run(ctx context.Context, args ...string) (string, string, error) {
	if a.Run != nil {
		return a.Run(ctx, a.binary(), args...)
	}
	cmd := exec.CommandContext(ctx, a.binary(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func (a *CLIAdapter) ListNames(ctx context.Context) (map[string]bool, error) {
	stdout, stderr, err := a.run(ctx, "secret", "ls", "--format", "{{.Name}}")
	if err != nil {
		return nil, &EngineError{Op: "list-names", Cause: fmt.Errorf("%w: %s", err, stderr)}
	}
	names := make(map[string]bool)
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names[line] = true
		}
	}
	return names, nil
}

func (a *CLIAdapter) ListDetailed(ctx context.Context) ([]SecretRecord, error) {
	names, err := a.ListNames(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SecretRecord, 0, len(names))
	for name := range names {
		stdout, stderr, err := a.run(ctx, "secret", "inspect", "--format", "{{.CreatedAt}}|{{json .Spec.Labels}}", name)
		if err != nil {
			return nil, &EngineError{Op: "list-detailed", Cause: fmt.Errorf("%w: %s", err, stderr)}
		}
		parts := strings.SplitN(strings.TrimSpace(stdout), "|", 2)
		rec := SecretRecord{Name: name}
		if len(parts) == 2 {
			if t, err := time.Parse(time.RFC3339Nano, parts[0]); err == nil {
				rec.CreatedAt = t
			}
			var labels map[string]string
			if err := json.Unmarshal([]byte(parts[1]), &labels); err == nil {
				rec.Labels = labels
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func (a *CLIAdapter) EnsureCreated(ctx context.Context, name string, value []byte, labels map[string]string) (bool, error) {
	args := []string{"secret", "create"}
	for k, v := range labels {
		args = append(args, "--label", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, name, "-")
	_, stderr, err := a.runWithStdin(ctx, value, args...)
	if err == nil {
		log.Info("created secret via CLI", "name", name)
		return true, nil
	}
	if strings.Contains(strings.ToLower(stderr), "already exists") {
		log.Debug("secret already exists, treating as idempotent", "name", name)
		return false, nil
	}
	return false, &EngineError{Op: "create", Cause: fmt.Errorf("%w: %s", err, stderr)}
}

func (a *CLIAdapter) runWithStdin(ctx context.Context, stdin []byte, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, a.binary(), args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func (a *CLIAdapter) Remove(ctx context.Context, name string) (bool, error) {
	_, stderr, err := a.run(ctx, "secret", "rm", name)
	if err == nil {
		log.Info("removed secret via CLI", "name", name)
		return true, nil
	}
	if strings.Contains(strings.ToLower(stderr), "no such secret") {
		return false, nil
	}
	return false, &EngineError{Op: "remove", Cause: fmt.Errorf("%w: %s", err, stderr)}
}
