// Package deps reports whether the external binaries storyreel shells out to are installed.
package deps

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Requirement defines an external binary storyreel relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch {
		case cmd == "":
			status.Detail = "command not configured"
		default:
			if _, err := exec.LookPath(cmd); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", cmd)
			} else {
				status.Available = true
			}
		}
		results = append(results, status)
	}
	return results
}

// Missing returns an error naming every unavailable required dependency.
func Missing(statuses []Status) error {
	var errs []error
	for _, s := range statuses {
		if s.Available || s.Optional {
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %s", s.Name, s.Detail))
	}
	return errors.Join(errs...)
}

// MediaRequirements lists the binaries used by rendering, captioning and burn-in.
func MediaRequirements(ffmpeg, ffprobe, asrCommand string) []Requirement {
	return []Requirement{
		{Name: "FFmpeg", Command: ffmpeg, Description: "Encodes clips, muxes audio and burns captions"},
		{Name: "FFprobe", Command: ffprobe, Description: "Reads media duration, size and frame rate"},
		{Name: "WhisperX", Command: asrCommand, Description: "Speech recognition for captions", Optional: true},
	}
}
