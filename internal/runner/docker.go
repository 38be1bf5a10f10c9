package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/pkg/errors"

	"github.com/refinery-cli/refinery/internal/model"
)

// workspacePath is where the repository working tree is mounted inside
// stage containers. Commands run with this as their working directory,
// so relative paths in the pipeline file behave the same as on the host.
const workspacePath = "/workspace"

// Label keys applied to every stage container. The managed-by label
// lets `docker ps --filter label=...` find refinery's containers; the
// others identify which stage a leftover container belonged to.
const (
	LabelManagedBy = "refinery.managed-by"
	LabelStage     = "refinery.stage"
	LabelStartedAt = "refinery.started-at"
)

// ManagedByValue is the constant value of the LabelManagedBy label.
const ManagedByValue = "refinery"

// Docker runs each stage command as a one-shot container: create,
// start, wait, collect logs, remove. The working tree is bind-mounted
// read-write so formatters and the optimizer mutate the same files the
// later diff and commit phases see.
type Docker struct {
	cli *Client

	// Stdout receives the container logs after each command finishes.
	// Nil defaults to the process stdout.
	Stdout io.Writer
}

// NewDocker creates a Docker runner on the given client.
func NewDocker(cli *Client) *Docker {
	return &Docker{cli: cli, Stdout: os.Stdout}
}

// Run executes the command in a container of spec.Image.
func (d *Docker) Run(ctx context.Context, spec Spec) (string, error) {
	if spec.Image == "" {
		return "", errors.New("docker runner requires an image")
	}

	cfg, hostCfg := containerSpec(spec)

	created, err := d.cli.Inner().ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if errdefs.IsNotFound(err) {
		// Image not present locally: pull it once and retry.
		if pullErr := d.pull(ctx, spec.Image); pullErr != nil {
			return "", pullErr
		}
		created, err = d.cli.Inner().ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	}
	if err != nil {
		return "", model.WrapCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create container for stage %q", spec.Stage), err)
	}

	// The container is removed explicitly after logs are collected.
	// AutoRemove would race log retrieval against container deletion.
	defer func() {
		_ = d.cli.Inner().ContainerRemove(context.WithoutCancel(ctx), created.ID,
			container.RemoveOptions{Force: true})
	}()

	if err := d.cli.Inner().ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", model.WrapCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("failed to start container for stage %q", spec.Stage), err)
	}

	statusCh, errCh := d.cli.Inner().ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)

	var exitCode int64
	select {
	case waitErr := <-errCh:
		if waitErr != nil {
			return "", model.WrapCLIError(model.ExitDockerNotRunning,
				fmt.Sprintf("failed waiting for stage %q container", spec.Stage), waitErr)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	output, logErr := d.logs(ctx, created.ID)
	if logErr != nil {
		// The exit code is still meaningful without logs; report the
		// log failure only if the command itself succeeded.
		if exitCode == 0 {
			return "", logErr
		}
	}

	if out := d.Stdout; out != nil && output != "" {
		fmt.Fprint(out, output)
	}

	if exitCode != 0 {
		return output, errors.Errorf("command %q exited with code %d", spec.Command, exitCode)
	}
	return output, nil
}

// pull fetches the image and drains the progress stream. The stream
// must be read to completion or the pull is aborted on Close.
func (d *Docker) pull(ctx context.Context, ref string) error {
	rc, err := d.cli.Inner().ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return model.WrapCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("failed to pull image %q", ref), err)
	}
	defer rc.Close()

	if _, err := io.Copy(io.Discard, rc); err != nil {
		return model.WrapCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("failed to pull image %q", ref), err)
	}
	return nil
}

// logs returns the container's combined stdout/stderr. Docker
// multiplexes both streams over one connection (the container runs
// without a TTY); stdcopy demultiplexes them into a single capture.
func (d *Docker) logs(ctx context.Context, id string) (string, error) {
	rc, err := d.cli.Inner().ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", model.WrapCLIError(model.ExitDockerNotRunning, "failed to read container logs", err)
	}
	defer rc.Close()

	var out strings.Builder
	if _, err := stdcopy.StdCopy(&out, &out, rc); err != nil {
		return out.String(), errors.Wrap(err, "demultiplexing container logs")
	}
	return out.String(), nil
}

// containerSpec builds the Docker container and host configuration for
// a stage command. Split out from Run so it can be tested without a
// daemon.
func containerSpec(spec Spec) (*container.Config, *container.HostConfig) {
	cfg := &container.Config{
		Image:      spec.Image,
		Cmd:        strslice.StrSlice{"sh", "-c", spec.Command},
		WorkingDir: workspacePath,
		// spec.Env holds only the pipeline and stage entries, so
		// image-defined variables (PATH, PYTHONPATH) stay intact and
		// nothing from the host environment leaks into the container.
		Env:    spec.Env,
		Labels: BuildLabels(spec.Stage),
	}
	hostCfg := &container.HostConfig{
		Binds: []string{spec.Dir + ":" + workspacePath},
	}
	return cfg, hostCfg
}

// BuildLabels constructs the label set for a stage container.
func BuildLabels(stage string) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelStage:     stage,
		LabelStartedAt: time.Now().UTC().Format(time.RFC3339),
	}
}
