package docker

import (
	"time"

	"github.com/ryanmoran/gptmebox/internal"
)

// Label keys persist launcher metadata on built images and created containers.
// The daemon is the only store; there is no state file. All keys share the
// "gptmebox." prefix to avoid collisions with labels set by other tools.
const (
	// LabelManaged identifies resources created by gptmebox. Value: "true".
	LabelManaged = "gptmebox.managed"

	// LabelSession records the session the resource belongs to.
	LabelSession = "gptmebox.session"

	// LabelImage records the image tag the resource was created from.
	LabelImage = "gptmebox.image"

	// LabelWorkspace records the host directory mounted at the workspace path.
	LabelWorkspace = "gptmebox.workspace"

	// LabelCreatedAt records the creation time, RFC 3339, UTC.
	LabelCreatedAt = "gptmebox.created-at"
)

// BuildLabels constructs the label set applied to the image build and the
// container, so resources created here are identifiable from the daemon alone.
func BuildLabels(sessionID internal.SessionID, image internal.ImageName, workspace string) map[string]string {
	return map[string]string{
		LabelManaged:   "true",
		LabelSession:   string(sessionID),
		LabelImage:     string(image),
		LabelWorkspace: workspace,
		LabelCreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}
