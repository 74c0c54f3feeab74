package remux

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/datallboy/gotrack/internal/domain"
)

// FFmpeg copies an audio stream into a fresh container without re-encoding.
type FFmpeg struct {
	BinaryPath string
}

func NewFFmpeg(binary string) (*FFmpeg, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg binary not found in PATH: %w", err)
	}
	return &FFmpeg{BinaryPath: path}, nil
}

// Rewrap writes src's audio stream to dst. The container is chosen from dst's extension.
func (f *FFmpeg) Rewrap(ctx context.Context, src, dst string) error {
	cmd := exec.CommandContext(ctx, f.BinaryPath,
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", src,
		"-c:a", "copy",
		dst,
	)

	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%w: ffmpeg exited with %d: %s",
			domain.ErrContainerConversion, exitErr.ExitCode(), strings.TrimSpace(string(out)))
	}
	return fmt.Errorf("%w: %w", domain.ErrContainerConversion, err)
}

// Unavailable is used when ffmpeg is missing; every re-wrap fails.
type Unavailable struct {
	Reason error
}

func (u Unavailable) Rewrap(ctx context.Context, src, dst string) error {
	return fmt.Errorf("%w: %v", domain.ErrContainerConversion, u.Reason)
}
