//go:build !windows

package link

import (
	"errors"
	"fmt"
	"os/exec"
)

// FindRuntime resolves a helper program in PATH.
func FindRuntime(runtime string) (string, error) {
	binPath, err := exec.LookPath(runtime)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("`%s` not found in PATH: %w", runtime, err)
		}
		return "", fmt.Errorf("failed to locate binary: %w", err)
	}

	return binPath, nil
}
