package docker

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docker/cli/cli/streams"
	"github.com/moby/moby/client"
	"github.com/ryanmoran/gptmebox/internal"
)

// TTY keeps a container's terminal sized to the local one for the duration of
// an attached run.
type TTY struct {
	client     DockerClient
	out        *streams.Out
	id         string
	maxRetries int
	retryDelay time.Duration
	writer     internal.Writer
}

// NewTTY returns a TTY for the given container. maxRetries bounds how often
// the initial resize is retried; retryDelay is the base delay, growing
// linearly per attempt.
func NewTTY(client DockerClient, out *streams.Out, id string, maxRetries int, retryDelay time.Duration, writer internal.Writer) TTY {
	return TTY{
		client:     client,
		out:        out,
		id:         id,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		writer:     writer,
	}
}

// Monitor performs an initial resize and then tracks SIGWINCH, resizing the
// container TTY after every signal. A failed initial resize is retried in the
// background with linearly growing delays; exhausting the retries is reported
// as a warning, the run continues unsized.
func (t TTY) Monitor(ctx context.Context) error {
	if err := t.Resize(ctx); err != nil {
		go t.retryResize(ctx)
	}

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGWINCH)
	go func() {
		defer signal.Stop(sigchan)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigchan:
				_ = t.Resize(ctx)
			}
		}
	}()

	return nil
}

func (t TTY) retryResize(ctx context.Context) {
	var err error
	for retry := range t.maxRetries {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(retry+1) * t.retryDelay):
			if err = t.Resize(ctx); err == nil {
				return
			}
		}
	}
	if err != nil {
		t.writer.Warningf("failed to resize tty after %d attempts: %v", t.maxRetries, err)
	}
}

// Resize sets the container TTY to the local terminal's dimensions. A zero
// size means there is no real terminal, so nothing is sent.
func (t TTY) Resize(ctx context.Context) error {
	height, width := t.out.GetTtySize()
	if height == 0 && width == 0 {
		return nil
	}

	_, err := t.client.ContainerResize(ctx, t.id, client.ContainerResizeOptions{
		Height: height,
		Width:  width,
	})
	return err
}
