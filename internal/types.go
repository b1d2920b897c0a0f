package internal

import "fmt"

// SessionID represents a unique session identifier for a container.
type SessionID string

// ImageName represents a Docker image name.
type ImageName string

// Command represents the command and arguments to execute in the container.
type Command []string

// Environment represents environment variables to pass to the container.
type Environment []string

// PortMapping represents a published port: the host port and the container
// port it forwards to, both TCP.
type PortMapping struct {
	HostPort      int
	ContainerPort int
}

// String returns the mapping in the "host:container" form used by docker run.
func (p PortMapping) String() string {
	return fmt.Sprintf("%d:%d", p.HostPort, p.ContainerPort)
}

// ExitError reports that the container exited with a non-zero status. It is
// returned from run so that main can propagate the container's exit status as
// the process exit code.
type ExitError struct {
	Status int
}

func (e ExitError) Error() string {
	return fmt.Sprintf("container exited with status %d", e.Status)
}
