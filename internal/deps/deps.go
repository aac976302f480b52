package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// versionTimeout bounds how long a binary may take to print its banner.
const versionTimeout = 5 * time.Second

// Requirement names an external binary and whether montage can run without it.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is the outcome of looking up one Requirement.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// CheckBinaries resolves every requirement on PATH and asks the ones it finds
// for their version. Lookups run concurrently; results keep the input order.
func CheckBinaries(ctx context.Context, requirements []Requirement) []Status {
	out := make([]Status, len(requirements))
	var g errgroup.Group
	for i, req := range requirements {
		g.Go(func() error {
			out[i] = check(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func check(ctx context.Context, req Requirement) Status {
	st := Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if st.Command == "" {
		st.Detail = "command not configured"
		return st
	}
	path, err := exec.LookPath(st.Command)
	if err != nil {
		st.Detail = fmt.Sprintf("binary %q not found", st.Command)
		return st
	}
	st.Available, st.Command = true, path
	st.Version = Version(ctx, path)
	return st
}

// Version returns the first line "<command> -version" prints. Failures and
// timeouts yield "".
func Version(ctx context.Context, command string) string {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	banner, err := exec.CommandContext(ctx, command, "-version").Output()
	if err != nil {
		return ""
	}
	first, _, _ := strings.Cut(strings.TrimSpace(string(banner)), "\n")
	return strings.TrimSpace(first)
}

// Missing lists the names of required dependencies that are unavailable.
func Missing(statuses []Status) []string {
	var names []string
	for _, st := range statuses {
		if !st.Optional && !st.Available {
			names = append(names, st.Name)
		}
	}
	return names
}
