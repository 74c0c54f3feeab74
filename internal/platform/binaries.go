package platform

import (
	"os/exec"
)

// OptionalBinaries lists external tools and the feature that needs them.
var OptionalBinaries = map[string]string{
	"ffmpeg": "container re-wrap for stream-protocol tracks",
}

type Missing struct {
	Binary  string
	Feature string
}

// CheckDependencies reports optional binaries that are not in PATH.
// overrides maps a binary name to a configured path to check instead.
func CheckDependencies(overrides map[string]string) []Missing {
	var missing []Missing
	for bin, feature := range OptionalBinaries {
		target := bin
		if p, ok := overrides[bin]; ok && p != "" {
			target = p
		}
		if _, err := exec.LookPath(target); err != nil {
			missing = append(missing, Missing{Binary: target, Feature: feature})
		}
	}
	return missing
}
