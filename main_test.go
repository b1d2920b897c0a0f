package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"testing"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"
	"github.com/ryanmoran/gptmebox/internal"
	"github.com/ryanmoran/gptmebox/internal/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDockerClient answers ContainerList and panics on everything else, which
// is all preflight needs.
type stubDockerClient struct {
	docker.DockerClient
	containers []container.Summary
	listErr    error
}

func (s stubDockerClient) ContainerList(ctx context.Context, options client.ContainerListOptions) (client.ContainerListResult, error) {
	if s.listErr != nil {
		return client.ContainerListResult{}, s.listErr
	}
	return client.ContainerListResult{Items: s.containers}, nil
}

func TestRun(t *testing.T) {
	t.Run("returns error for an invalid publish value", func(t *testing.T) {
		err := run([]string{"gptmebox", "--publish", "eleven:eight"}, nil)
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid host port")
	})

	t.Run("returns error for an invalid build argument", func(t *testing.T) {
		err := run([]string{"gptmebox", "--build-arg", "=server"}, nil)
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid build argument")
	})
}

func TestPreflight(t *testing.T) {
	setup := func(t *testing.T, stub stubDockerClient, args []string) (internal.Config, docker.Client, *bytes.Buffer) {
		t.Helper()

		config, err := internal.ParseConfig(args, nil)
		require.NoError(t, err)

		return config, docker.NewClient(stub), &bytes.Buffer{}
	}

	t.Run("flags the mapping that disagrees with the image's documented port", func(t *testing.T) {
		config, client, errOut := setup(t, stubDockerClient{}, nil)
		w := internal.NewCustomWriter(&bytes.Buffer{}, errOut)

		preflight(context.Background(), client, config, w)

		assert.Contains(t, errOut.String(), "port mapping 11130:8000 disagrees with port 11130")
		assert.Contains(t, errOut.String(), "flagging for the image maintainers")
	})

	t.Run("stays quiet when the mapping matches the documented port", func(t *testing.T) {
		config, client, errOut := setup(t, stubDockerClient{}, []string{"--publish", "11130:11130"})
		w := internal.NewCustomWriter(&bytes.Buffer{}, errOut)

		preflight(context.Background(), client, config, w)

		assert.NotContains(t, errOut.String(), "disagrees")
	})

	t.Run("warns when the host port is already bound", func(t *testing.T) {
		listener, err := net.Listen("tcp", ":0")
		require.NoError(t, err)
		defer listener.Close()
		port := listener.Addr().(*net.TCPAddr).Port

		config, client, errOut := setup(t, stubDockerClient{}, []string{"--publish", fmt.Sprintf("%d:8000", port)})
		w := internal.NewCustomWriter(&bytes.Buffer{}, errOut)

		preflight(context.Background(), client, config, w)

		assert.Contains(t, errOut.String(), fmt.Sprintf("host port %d appears to be in use", port))
	})

	t.Run("warns about sessions that are still running", func(t *testing.T) {
		stub := stubDockerClient{
			containers: []container.Summary{
				{
					ID:    "abc123def456abc123def456",
					State: "running",
					Labels: map[string]string{
						docker.LabelManaged: "true",
						docker.LabelSession: "gptmebox-42",
						docker.LabelImage:   "gptme-server:latest",
					},
				},
				{
					ID:    "fedcba654321fedcba654321",
					State: "exited",
					Labels: map[string]string{
						docker.LabelManaged: "true",
						docker.LabelSession: "gptmebox-7",
						docker.LabelImage:   "gptme-server:latest",
					},
				},
			},
		}

		config, client, errOut := setup(t, stub, nil)
		w := internal.NewCustomWriter(&bytes.Buffer{}, errOut)

		preflight(context.Background(), client, config, w)

		assert.Contains(t, errOut.String(), "session gptmebox-42 is still running (container abc123def456)")
		assert.NotContains(t, errOut.String(), "gptmebox-7")
	})

	t.Run("warns when listing containers fails", func(t *testing.T) {
		stub := stubDockerClient{listErr: fmt.Errorf("daemon went away")}

		config, client, errOut := setup(t, stub, nil)
		w := internal.NewCustomWriter(&bytes.Buffer{}, errOut)

		preflight(context.Background(), client, config, w)

		assert.Contains(t, errOut.String(), "failed to check for running instances")
	})
}
