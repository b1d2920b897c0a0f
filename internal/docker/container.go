package docker

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/docker/cli/cli/streams"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"
	"github.com/moby/term"
	"github.com/ryanmoran/gptmebox/internal"
	"golang.org/x/sync/errgroup"
)

// Container is a handle on one created container: the session-named server
// instance the launcher runs in the foreground.
type Container struct {
	client DockerClient

	ID          string
	Name        string
	StopTimeout int
	TTYRetries  int
	RetryDelay  time.Duration
}

// Start starts the container. Returns an error if the container fails to start,
// which may indicate a misconfiguration or an unhealthy Docker daemon.
func (c Container) Start(ctx context.Context) error {
	_, err := c.client.ContainerStart(ctx, c.ID, client.ContainerStartOptions{})
	if err != nil {
		return fmt.Errorf("failed to start container %q: %w\nContainer may be misconfigured or Docker daemon may be unhealthy", c.Name, err)
	}

	return nil
}

// Attach wires the local terminal to the container: raw mode on both streams,
// SIGWINCH-driven resize, stdin and stdout forwarded until the container or
// the context ends. The forwarding runs in the background; Wait blocks on the
// container itself.
func (c Container) Attach(ctx context.Context, w internal.Writer) error {
	stdin, stdout, _ := term.StdStreams()
	in := streams.NewIn(stdin)
	out := streams.NewOut(stdout)

	// The first resize can race container startup; the monitor retries it.
	height, width := out.GetTtySize()
	_, err := c.client.ContainerResize(ctx, c.ID, client.ContainerResizeOptions{
		Height: height,
		Width:  width,
	})
	if err != nil {
		w.Warningf("failed to resize tty: %v", err)
	}

	tty := NewTTY(c.client, out, c.ID, c.TTYRetries, c.RetryDelay, w)
	err = tty.Monitor(ctx)
	if err != nil {
		return fmt.Errorf("failed to monitor tty size: %w", err)
	}

	restore := sync.OnceFunc(func() {
		in.RestoreTerminal()
		out.RestoreTerminal()
	})

	err = in.SetRawTerminal()
	if err != nil {
		return fmt.Errorf("failed to set stdin to raw terminal mode: %w\nYour terminal may not support TTY operations", err)
	}

	response, err := c.client.ContainerAttach(ctx, c.ID, client.ContainerAttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return fmt.Errorf("failed to attach to container %q: %w\nContainer may have exited prematurely or Docker API is unreachable", c.Name, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	// stdin → container
	g.Go(func() error {
		defer restore()
		defer response.Conn.Close()

		_, err := io.Copy(response.Conn, in)
		// Context cancellation is expected, not an error
		if gctx.Err() != nil {
			return nil
		}
		if err != nil {
			w.Warningf("stdin forwarding error: %v", err)
		}
		return nil
	})

	err = out.SetRawTerminal()
	if err != nil {
		return fmt.Errorf("failed to set stdout to raw terminal mode: %w\nYour terminal may not support TTY operations", err)
	}

	// container → stdout
	g.Go(func() error {
		defer restore()

		_, err := io.Copy(out, response.Reader)
		// Context cancellation is expected, not an error
		if gctx.Err() != nil {
			return nil
		}
		if err != nil && err != io.EOF {
			w.Warningf("stdout/stderr forwarding error: %v", err)
		}
		return nil
	})

	// The copies end when the container exits or the context is cancelled, so
	// nothing blocks on them here.
	go func() {
		_ = g.Wait()
	}()

	return nil
}

// Wait blocks until the container exits or the operator interrupts (SIGINT,
// SIGTERM). On interrupt the container is stopped gracefully with the
// configured timeout, and the final status is still collected. Returns the
// container's exit status so callers can propagate it.
func (c Container) Wait(ctx context.Context, w internal.Writer) (int, error) {
	wait := c.client.ContainerWait(ctx, c.ID, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-wait.Error:
		if err != nil {
			return 0, fmt.Errorf("failed to wait for container %q: %w\nDocker daemon may have encountered an error", c.Name, err)
		}
	case status := <-wait.Result:
		w.Printf("\nContainer exited with status: %d\n", status.StatusCode)
		return int(status.StatusCode), nil
	case <-sigChan:
		w.Println("\nReceived signal, stopping container...")
		timeout := c.StopTimeout
		_, err := c.client.ContainerStop(ctx, c.ID, client.ContainerStopOptions{Timeout: &timeout})
		if err != nil {
			w.Warningf("failed to stop container: %v", err)
			return 0, nil
		}

		// The stop landed, so the original wait completes with the final status.
		select {
		case status := <-wait.Result:
			w.Printf("\nContainer exited with status: %d\n", status.StatusCode)
			return int(status.StatusCode), nil
		case err := <-wait.Error:
			if err != nil {
				return 0, fmt.Errorf("failed to wait for stopped container %q: %w", c.Name, err)
			}
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return 0, nil
}

// Remove removes the container. Fails while the container is still running;
// use ForceRemove for that.
func (c Container) Remove(ctx context.Context) error {
	_, err := c.client.ContainerRemove(ctx, c.ID, client.ContainerRemoveOptions{})
	if err != nil {
		return fmt.Errorf("failed to remove container %q: %w\nContainer may still be running - use ForceRemove if needed", c.Name, err)
	}

	return nil
}

// ForceRemove removes the container even if it is still running. This is the
// cleanup path, so it must work from any container state.
func (c Container) ForceRemove(ctx context.Context) error {
	_, err := c.client.ContainerRemove(ctx, c.ID, client.ContainerRemoveOptions{
		Force: true,
	})
	if err != nil {
		return fmt.Errorf("failed to force remove container %q: %w\nContainer may be in an inconsistent state", c.Name, err)
	}

	return nil
}
