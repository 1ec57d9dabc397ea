package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

var lookPath = exec.LookPath

// legacyMagick is the ImageMagick 6 entry point, which accepts the same
// arguments as the version 7 "magick" binary.
const legacyMagick = "convert"

// Requirement defines an external tool courseopt can use.
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
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := lookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		status.Command = resolved
		results = append(results, status)
	}
	return results
}

// ResolveMagick returns the ImageMagick binary to execute. The configured
// name wins; when it is the default "magick" and missing, the legacy
// "convert" entry point is tried.
func ResolveMagick(configured string) (string, bool) {
	configured = strings.TrimSpace(configured)
	if configured == "" {
		configured = "magick"
	}
	if path, err := lookPath(configured); err == nil {
		return path, true
	}
	if configured == "magick" {
		if path, err := lookPath(legacyMagick); err == nil {
			return path, true
		}
	}
	return configured, false
}
