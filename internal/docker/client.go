package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/netip"
	"strconv"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/network"
	"github.com/moby/moby/client"
	"github.com/ryanmoran/gptmebox/internal"
)

type Image struct {
	Name string
}

type Client struct {
	client DockerClient
}

// BuildOptions describes an image build: where the context directory and
// Dockerfile live, the tag to apply, and the build arguments and labels to
// pass to the daemon.
type BuildOptions struct {
	ContextDir     string
	DockerfilePath string
	Tag            internal.ImageName
	BuildArgs      map[string]*string
	Labels         map[string]string
}

// CreateOptions describes the container to create: its name, the image and
// command, the published port, bind mounts, environment, labels, and the
// timeouts governing stop and TTY resize behavior.
type CreateOptions struct {
	Name        internal.SessionID
	Image       Image
	Args        internal.Command
	Env         internal.Environment
	Volumes     []string
	Ports       internal.PortMapping
	Labels      map[string]string
	StopTimeout int
	TTYRetries  int
	RetryDelay  time.Duration
}

// ManagedContainer identifies a container created by this tool, reconstructed
// from its labels.
type ManagedContainer struct {
	ID      string
	Session string
	Image   string
	State   string
}

// NewClient creates a Client that wraps the provided Docker client interface.
func NewClient(dockerClient DockerClient) Client {
	return Client{
		client: dockerClient,
	}
}

// NewDefaultClient creates a Client with a real Docker client from the environment.
func NewDefaultClient() (Client, error) {
	cli, err := client.New(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return Client{}, fmt.Errorf("failed to create docker client: %w\nEnsure Docker is running and DOCKER_HOST is set correctly", err)
	}

	return NewClient(cli), nil
}

// Close closes the underlying Docker client connection.
func (c Client) Close() {
	c.client.Close()
}

// BuildImage builds a Docker image from the configured build context and tags
// it with the configured name. The context directory and Dockerfile are
// streamed to the daemon as a tar archive, and the build output is decoded and
// written to the provided Writer as it arrives. Returns an error if the
// context cannot be archived, the build fails, or the build output cannot be
// decoded.
func (c Client) BuildImage(ctx context.Context, options BuildOptions, w internal.Writer) (Image, error) {
	buildContext, err := CreateBuildContext(options.ContextDir, options.DockerfilePath)
	if err != nil {
		return Image{}, err
	}
	defer buildContext.Close()

	response, err := c.client.ImageBuild(ctx, buildContext, client.ImageBuildOptions{
		Dockerfile: "Dockerfile",
		Tags:       []string{string(options.Tag)},
		BuildArgs:  options.BuildArgs,
		Labels:     options.Labels,
		Remove:     true,
	})
	if err != nil {
		return Image{}, fmt.Errorf("failed to build image %q: %w\nCheck Docker daemon logs for details", options.Tag, err)
	}
	defer response.Body.Close()

	decoder := json.NewDecoder(response.Body)
	for decoder.More() {
		select {
		case <-ctx.Done():
			return Image{}, ctx.Err()
		default:
		}

		var output struct {
			Stream      string `json:"stream"`
			ErrorDetail struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"errorDetail"`
		}
		err := decoder.Decode(&output)
		if err != nil {
			return Image{}, fmt.Errorf("failed to decode build output: %w\nDocker may have returned malformed JSON", err)
		}

		if output.ErrorDetail.Message != "" {
			return Image{}, fmt.Errorf("docker build failed: %s\nCheck your Dockerfile syntax and base image availability", output.ErrorDetail.Message)
		}

		w.Print(output.Stream)
	}

	return Image{
		Name: string(options.Tag),
	}, nil
}

// CreateContainer creates a new Docker container configured for an interactive
// foreground run: TTY and stdin attachment, the published server port, bind
// mounts, environment variables, and identifying labels. The container can
// reach the host via host.docker.internal. Returns a Container handle or an
// error if creation fails.
func (c Client) CreateContainer(ctx context.Context, options CreateOptions) (Container, error) {
	containerPort, err := network.ParsePort(strconv.Itoa(options.Ports.ContainerPort) + "/tcp")
	if err != nil {
		return Container{}, fmt.Errorf("failed to parse container port %d: %w", options.Ports.ContainerPort, err)
	}

	response, err := c.client.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config: &container.Config{
			Image:        options.Image.Name,
			Cmd:          []string(options.Args),
			Tty:          true,
			OpenStdin:    true,
			AttachStdin:  true,
			AttachStdout: true,
			AttachStderr: true,
			Env:          []string(options.Env),
			Labels:       options.Labels,
			ExposedPorts: network.PortSet{
				containerPort: struct{}{},
			},
		},
		HostConfig: &container.HostConfig{
			ExtraHosts: []string{
				"host.docker.internal:host-gateway",
			},
			Binds: options.Volumes,
			PortBindings: network.PortMap{
				containerPort: []network.PortBinding{
					{
						HostIP:   netip.MustParseAddr("0.0.0.0"),
						HostPort: strconv.Itoa(options.Ports.HostPort),
					},
				},
			},
		},
		Name:             string(options.Name),
		NetworkingConfig: nil,
		Platform:         nil,
	})
	if err != nil {
		return Container{}, fmt.Errorf("failed to create container %q from image %q: %w\nEnsure image exists and container config is valid", options.Name, options.Image.Name, err)
	}

	return Container{
		ID:          response.ID,
		Name:        string(options.Name),
		client:      c.client,
		StopTimeout: options.StopTimeout,
		TTYRetries:  options.TTYRetries,
		RetryDelay:  options.RetryDelay,
	}, nil
}

// Ping verifies the Docker daemon is reachable and returns its API version.
// Used as a preflight so a dead daemon fails the launch before any build work
// starts.
func (c Client) Ping(ctx context.Context) (string, error) {
	ping, err := c.client.Ping(ctx, client.PingOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to ping docker daemon: %w\nMake sure Docker is installed and running (try 'docker ps')", err)
	}
	return ping.APIVersion, nil
}

// ListManaged returns the containers carrying the managed-by label. Filtering
// happens client side, on the listed labels, so it works against daemons of
// any API version.
func (c Client) ListManaged(ctx context.Context) ([]ManagedContainer, error) {
	result, err := c.client.ContainerList(ctx, client.ContainerListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	var managed []ManagedContainer
	for _, item := range result.Items {
		if item.Labels[LabelManaged] != "true" {
			continue
		}
		managed = append(managed, ManagedContainer{
			ID:      item.ID,
			Session: item.Labels[LabelSession],
			Image:   item.Labels[LabelImage],
			State:   string(item.State),
		})
	}
	return managed, nil
}
