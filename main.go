package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ryanmoran/gptmebox/internal"
	"github.com/ryanmoran/gptmebox/internal/docker"
	"github.com/ryanmoran/gptmebox/internal/gptme"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("panic occurred: %v", r)
			os.Exit(1)
		}
	}()

	if err := run(os.Args, os.Environ()); err != nil {
		var exitErr internal.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Status)
		}
		log.Fatal(err)
	}
}

func run(args, env []string) error {
	w := internal.NewStandardWriter()

	cleanupMgr := internal.NewCleanupManager(w)
	defer cleanupMgr.Execute()

	config, err := internal.ParseConfig(args[1:], env)
	if err != nil {
		return err
	}

	// Create context with cancellation for proper goroutine cleanup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals to cancel context and cleanup
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	session := internal.GenerateSession()

	workspace, err := filepath.Abs(config.Workspace)
	if err != nil {
		return fmt.Errorf("failed to resolve workspace directory %q: %w", config.Workspace, err)
	}

	volumes := append([]string{fmt.Sprintf("%s:%s", workspace, internal.WorkspaceMount)}, config.Volumes...)

	client, err := docker.NewDefaultClient()
	if err != nil {
		return fmt.Errorf("failed to create docker client: %w\nMake sure Docker is installed and running (try 'docker ps')", err)
	}
	cleanupMgr.Add("docker-client", func() error {
		client.Close()
		return nil
	})

	if _, err := client.Ping(ctx); err != nil {
		return err
	}

	preflight(ctx, client, config, w)

	labels := docker.BuildLabels(session.ID(), config.ImageName, workspace)

	w.Section(fmt.Sprintf("Building %s", config.ImageName))
	image, err := client.BuildImage(ctx, docker.BuildOptions{
		ContextDir:     config.ContextDir,
		DockerfilePath: config.DockerfilePath,
		Tag:            config.ImageName,
		BuildArgs:      config.BuildArgs,
		Labels:         labels,
	}, w)
	if err != nil {
		return fmt.Errorf("failed to build docker image %q from %q: %w", config.ImageName, config.DockerfilePath, err)
	}

	w.Section(fmt.Sprintf("Starting %s", session.ID()))
	container, err := client.CreateContainer(ctx, docker.CreateOptions{
		Name:        session.ID(),
		Image:       image,
		Args:        config.Args,
		Env:         config.Env,
		Volumes:     volumes,
		Ports:       config.Ports,
		Labels:      labels,
		StopTimeout: config.StopTimeout,
		TTYRetries:  config.TTYRetries,
		RetryDelay:  config.RetryDelay,
	})
	if err != nil {
		return fmt.Errorf("failed to create container %q from image %q: %w", session.ID(), image.Name, err)
	}
	cleanupMgr.Add("container", func() error {
		return container.ForceRemove(ctx)
	})

	err = container.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start container %q: %w", session.ID(), err)
	}

	err = container.Attach(ctx, w)
	if err != nil {
		return fmt.Errorf("failed to attach to container %q: %w\nThis may indicate a TTY configuration issue", session.ID(), err)
	}

	// A command override runs something other than the server, so there is
	// nothing to probe for readiness.
	if !config.NoWait && len(config.Args) == 0 {
		go announceWhenReady(ctx, config, w)
	}

	status, err := container.Wait(ctx, w)
	if err != nil {
		return fmt.Errorf("failed to wait for container %q: %w", session.ID(), err)
	}
	if status != 0 {
		return internal.ExitError{Status: status}
	}

	return nil
}

// preflight surfaces launch conditions worth knowing about before the build
// starts. None of them abort the launch; the daemon reports hard conflicts on
// its own when the container starts.
func preflight(ctx context.Context, client docker.Client, config internal.Config, w internal.Writer) {
	if config.Ports.ContainerPort != internal.ImageServerPort {
		w.Warningf("port mapping %s disagrees with port %d, which the image documents as its server port; flagging for the image maintainers rather than picking a side", config.Ports, internal.ImageServerPort)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", config.Ports.HostPort))
	if err != nil {
		w.Warningf("host port %d appears to be in use; the container may fail to start", config.Ports.HostPort)
	} else {
		listener.Close()
	}

	managed, err := client.ListManaged(ctx)
	if err != nil {
		w.Warningf("failed to check for running instances: %v", err)
		return
	}
	for _, item := range managed {
		if item.State == "running" {
			w.Warningf("session %s is still running (container %.12s); it may already hold port %d", item.Session, item.ID, config.Ports.HostPort)
		}
	}
}

// announceWhenReady probes the published port until the server answers, then
// prints where to reach it. It runs alongside the attached container output.
func announceWhenReady(ctx context.Context, config internal.Config, w internal.Writer) {
	baseURL := fmt.Sprintf("http://localhost:%d", config.Ports.HostPort)

	var options []gptme.Option
	if config.ServerToken != "" {
		options = append(options, gptme.WithToken(config.ServerToken))
	}
	client := gptme.NewClient(baseURL, options...)

	if err := gptme.WaitReady(ctx, client, config.ReadyAttempts, config.ReadyDelay); err != nil {
		if ctx.Err() == nil {
			w.Warningf("%v", err)
		}
		return
	}

	w.Printf("\ngptme-server is ready: %s/api (web UI at %s)\n", baseURL, baseURL)
}
