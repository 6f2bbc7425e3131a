package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Requirement defines an external binary ffpipe relies on.
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
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Command = resolved
		status.Available = true
		results = append(results, status)
	}
	return results
}

// DirectoryStatus is the outcome of CheckDirectoryAccess.
type DirectoryStatus struct {
	Name   string
	Path   string
	Passed bool
	Detail string
}

// CheckDirectoryAccess verifies that path is a directory the current user can
// read, write, and traverse. A missing directory passes when its parent is
// writable, since installers create it on demand.
func CheckDirectoryAccess(name, path string) DirectoryStatus {
	result := DirectoryStatus{Name: name, Path: path}
	info, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Detail = fmt.Sprintf("%s (error: stat: %v)", path, err)
			return result
		}
		parent := parentDir(path)
		if err := accessible(parent); err != nil {
			result.Detail = fmt.Sprintf("%s (error: does not exist and parent is not writable: %v)", path, err)
			return result
		}
		result.Passed = true
		result.Detail = fmt.Sprintf("%s (will be created)", path)
		return result
	}
	if !info.IsDir() {
		result.Detail = fmt.Sprintf("%s (error: is not a directory)", path)
		return result
	}
	if err := accessible(path); err != nil {
		result.Detail = fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)
		return result
	}
	result.Passed = true
	result.Detail = fmt.Sprintf("%s (read/write ok)", path)
	return result
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if executableSuffix != "" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

func parentDir(path string) string {
	return filepath.Dir(filepath.Clean(path))
}
