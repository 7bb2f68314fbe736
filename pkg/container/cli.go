package container

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"github.com/thin-edge/tedge-image-prune/pkg/retention"
)

var DefaultBinary = "docker"

// ListFormat renders one json object per image. The plain "json" format is not
// used since podman prints a single array with a different set of fields
var ListFormat = `{"Repository":{{json .Repository}},"Tag":{{json .Tag}},"CreatedAt":{{json .CreatedAt}},"ID":{{json .ID}},"Size":{{json .Size}}}`

// CommandRunner runs a command and returns its stdout
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// CommandError includes the stderr of a failed command
type CommandError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = os.Environ()
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	slog.Debug("Running command.", "name", name, "args", args)
	out, err := cmd.Output()
	if err != nil {
		return out, &CommandError{
			Command: strings.Join(append([]string{name}, args...), " "),
			Stderr:  strings.TrimSpace(stderr.String()),
			Err:     err,
		}
	}
	return out, nil
}

// CLIClient uses the container engine's command line interface
type CLIClient struct {
	Binary     string
	References []string
	Run        CommandRunner
}

func NewCLIClient(binary string) *CLIClient {
	if binary == "" {
		binary = DefaultBinary
	}
	return &CLIClient{
		Binary: binary,
		Run:    ExecRunner,
	}
}

func (c *CLIClient) ListImages(ctx context.Context) ([]retention.ImageRecord, []error, error) {
	args := []string{"image", "ls", "--format", ListFormat}
	for _, ref := range c.References {
		args = append(args, "--filter", "reference="+ref)
	}
	out, err := c.Run(ctx, c.Binary, args...)
	if err != nil {
		return nil, nil, &ListingError{Err: errors.Wrapf(err, "%s image ls", c.Binary)}
	}

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	records, warnings := retention.ParseLines(lines)
	slog.Debug("Listed images.", "references", len(records), "skipped", len(warnings))
	return records, warnings, nil
}

func (c *CLIClient) DeleteImage(ctx context.Context, repository, tag string) (string, error) {
	ref := Reference(repository, tag)
	out, err := c.Run(ctx, c.Binary, "rmi", ref)
	if err != nil {
		return "", &DeleteError{Reference: ref, Err: err}
	}
	return strings.TrimSpace(string(out)), nil
}
