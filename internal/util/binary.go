// Package util holds small shared helpers with no domain knowledge of
// their own.
package util

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// knownLocations are the directories packaged encoder builds usually land
// in on a Linux host. They are tried before a plain PATH lookup so a
// vendored build wins over whatever a distro happens to ship.
var knownLocations = []string{
	"/usr/local/bin",
	"/usr/bin",
	"/opt/ffmpeg/bin",
	"/snap/bin",
}

// FindBinary resolves an executable by name. An explicit override via
// envVar always wins; then the working directory (development builds sit
// next to the binary), the known install locations, and finally PATH.
// Every candidate except the PATH lookup is checked for the executable bit
// before being returned.
func FindBinary(name string, envVar string) (string, error) {
	if envVar != "" {
		if override := os.Getenv(envVar); override != "" && isExecutable(override) {
			return override, nil
		}
	}

	candidates := []string{"./" + name}
	for _, dir := range knownLocations {
		candidates = append(candidates, filepath.Join(dir, name))
	}
	for _, candidate := range candidates {
		if isExecutable(candidate) {
			return candidate, nil
		}
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("binary %s not found", name)
}

// isExecutable reports whether path is a regular file with any executable
// bit set.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}
