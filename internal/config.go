package internal

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultImageName is the tag applied to the built image. The tutorial and
	// the upstream docs both refer to the server by this exact tag, so changing
	// it breaks every "docker run gptme-server:latest" invocation out there.
	DefaultImageName = "gptme-server:latest"

	// DefaultDockerfile is the Dockerfile used when --dockerfile is not given.
	DefaultDockerfile = "Dockerfile"

	// DefaultHostPort is the host port published for the server.
	DefaultHostPort = 11130

	// DefaultContainerPort is the container port the host port forwards to.
	DefaultContainerPort = 8000

	// ImageServerPort is the port the image's own documentation and defaults
	// use for the server. It disagrees with DefaultContainerPort. The launcher
	// reports the mismatch at startup instead of picking a side; resolving it
	// belongs to the image maintainers.
	ImageServerPort = 11130

	// WorkspaceMount is the path where the workspace directory appears inside
	// the container.
	WorkspaceMount = "/workspace"

	// UserIDBuildArg is the build argument controlling the UID of the image's
	// unprivileged user. It defaults to the invoking user's UID so files the
	// server writes into the workspace mount stay owned by the operator.
	UserIDBuildArg = "USER_ID"

	// DefaultStopTimeout is the timeout in seconds for gracefully stopping a
	// container before forcefully killing it. 10 seconds provides enough time
	// for the server to handle SIGTERM and flush conversation logs.
	DefaultStopTimeout = 10

	// DefaultTTYRetries is the number of retry attempts for initial TTY resize
	// operations. The container may not be fully ready when we first try to
	// resize, so we retry multiple times with increasing delays.
	DefaultTTYRetries = 10

	// DefaultRetryDelay is the base delay between TTY resize retry attempts.
	// Each retry multiplies this by (retry+1): 10ms, 20ms, 30ms, etc.
	DefaultRetryDelay = 10 * time.Millisecond

	// DefaultReadyAttempts is the number of health probe attempts made against
	// the published port after the container starts.
	DefaultReadyAttempts = 10

	// DefaultReadyDelay is the base delay between health probe attempts. Each
	// attempt multiplies this by (attempt+1), same scheme as the TTY retries.
	DefaultReadyDelay = 500 * time.Millisecond
)

type Config struct {
	ImageName      ImageName
	DockerfilePath string
	ContextDir     string
	BuildArgs      map[string]*string
	Ports          PortMapping
	Workspace      string
	ServerToken    string
	NoWait         bool
	StopTimeout    int
	TTYRetries     int
	RetryDelay     time.Duration
	ReadyAttempts  int
	ReadyDelay     time.Duration

	Args    Command
	Env     Environment
	Volumes []string
}

type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// ParseConfig parses command-line arguments and environment variables to
// construct the launcher configuration. It extracts flags (--tag, --publish,
// --build-arg, --env, --volume, ...), captures the remaining arguments as a
// command override for the container, and assembles the container environment:
// GPTME_DISABLE_AUTH is always set (defaulting to "true", host environment
// winning), and GPTME_SERVER_HOST, GPTME_SERVER_PORT, and GPTME_SERVER_TOKEN
// are forwarded when the host environment defines them. A .env file in the
// working directory participates in the lookup, host environment winning on
// conflict. Invoked with no arguments, the resulting configuration reproduces
// the fixed build-and-run sequence: build gptme-server:latest from ./Dockerfile,
// publish 11130:8000, and mount the working directory at /workspace.
func ParseConfig(args []string, environment []string) (Config, error) {
	lookup := make(map[string]string)
	for _, variable := range environment {
		key, value, ok := strings.Cut(variable, "=")
		if ok {
			lookup[key] = value
		}
	}

	// gptme deployments keep their settings in dotenv files.
	if dotenv, err := godotenv.Read(); err == nil {
		for key, value := range dotenv {
			if _, ok := lookup[key]; !ok {
				lookup[key] = value
			}
		}
	}

	var (
		additionalEnv  stringSlice
		volumes        stringSlice
		buildArgs      stringSlice
		dockerfilePath string
		contextDir     string
		tag            string
		publish        string
		workspace      string
		noWait         bool
	)

	fs := flag.NewFlagSet("gptmebox", flag.ContinueOnError)
	fs.Var(&additionalEnv, "env", "environment variable")
	fs.Var(&volumes, "volume", "volume mount")
	fs.Var(&buildArgs, "build-arg", "image build argument")
	fs.StringVar(&dockerfilePath, "dockerfile", DefaultDockerfile, "Dockerfile path")
	fs.StringVar(&contextDir, "context", ".", "image build context directory")
	fs.StringVar(&tag, "tag", DefaultImageName, "image tag")
	fs.StringVar(&publish, "publish", fmt.Sprintf("%d:%d", DefaultHostPort, DefaultContainerPort), "published port mapping")
	fs.StringVar(&workspace, "workspace", ".", "directory mounted at "+WorkspaceMount)
	fs.BoolVar(&noWait, "no-wait", false, "do not wait for the server to answer after start")

	// Ignore errors since we want to capture remaining args
	_ = fs.Parse(args)

	programArgs := fs.Args()

	ports, err := parsePublish(publish)
	if err != nil {
		return Config{}, err
	}

	buildArguments := make(map[string]*string)
	for _, arg := range buildArgs {
		key, value, _ := strings.Cut(arg, "=")
		if key == "" {
			return Config{}, fmt.Errorf("invalid build argument %q: expected KEY=value form", arg)
		}
		v := value
		buildArguments[key] = &v
	}
	if _, ok := buildArguments[UserIDBuildArg]; !ok {
		v := defaultUserID()
		buildArguments[UserIDBuildArg] = &v
	}

	var env []string
	value, ok := lookup["GPTME_DISABLE_AUTH"]
	if !ok {
		value = "true"
	}
	env = append(env, fmt.Sprintf("GPTME_DISABLE_AUTH=%s", value))

	for _, key := range []string{"GPTME_SERVER_HOST", "GPTME_SERVER_PORT", "GPTME_SERVER_TOKEN"} {
		if value, ok := lookup[key]; ok {
			env = append(env, fmt.Sprintf("%s=%s", key, value))
		}
	}

	env = append(env, additionalEnv...)

	return Config{
		ImageName:      ImageName(tag),
		DockerfilePath: dockerfilePath,
		ContextDir:     contextDir,
		BuildArgs:      buildArguments,
		Ports:          ports,
		Workspace:      workspace,
		ServerToken:    lookup["GPTME_SERVER_TOKEN"],
		NoWait:         noWait,
		StopTimeout:    DefaultStopTimeout,
		TTYRetries:     DefaultTTYRetries,
		RetryDelay:     DefaultRetryDelay,
		ReadyAttempts:  DefaultReadyAttempts,
		ReadyDelay:     DefaultReadyDelay,
		Args:           Command(programArgs),
		Env:            Environment(env),
		Volumes:        volumes,
	}, nil
}

func parsePublish(value string) (PortMapping, error) {
	host, container, ok := strings.Cut(value, ":")
	if !ok {
		return PortMapping{}, fmt.Errorf("invalid publish value %q: %s", value, publishHint)
	}

	hostPort, err := strconv.Atoi(host)
	if err != nil {
		return PortMapping{}, fmt.Errorf("invalid host port %q in publish value: %w\n%s", host, err, publishHint)
	}

	containerPort, err := strconv.Atoi(container)
	if err != nil {
		return PortMapping{}, fmt.Errorf("invalid container port %q in publish value: %w\n%s", container, err, publishHint)
	}

	if hostPort < 1 || hostPort > 65535 {
		return PortMapping{}, fmt.Errorf("host port %d out of range 1-65535", hostPort)
	}
	if containerPort < 1 || containerPort > 65535 {
		return PortMapping{}, fmt.Errorf("container port %d out of range 1-65535", containerPort)
	}

	return PortMapping{HostPort: hostPort, ContainerPort: containerPort}, nil
}

const publishHint = "Expected HOST:CONTAINER form, e.g. 11130:8000"

func defaultUserID() string {
	uid := os.Getuid()
	if uid < 0 {
		// Getuid reports -1 where UIDs do not exist; fall back to the
		// conventional first regular user.
		return "1000"
	}
	return strconv.Itoa(uid)
}
