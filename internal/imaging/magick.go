package imaging

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"courseopt/internal/services"
)

var commandContext = exec.CommandContext

// MagickOption configures the ImageMagick encoder.
type MagickOption func(*Magick)

// WithBinary overrides the default binary name.
func WithBinary(binary string) MagickOption {
	return func(m *Magick) {
		if binary != "" {
			m.binary = binary
		}
	}
}

// Magick wraps the ImageMagick command-line tool.
type Magick struct {
	binary string
}

// NewMagick constructs the encoder using defaults.
func NewMagick(opts ...MagickOption) *Magick {
	m := &Magick{binary: "magick"}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name identifies the encoder in reports.
func (m *Magick) Name() string { return EncoderMagick }

// Args builds the command line for one transform. Only the first frame of
// multi-page inputs is used and the resize geometry only ever shrinks.
func (m *Magick) Args(src, dst string, result TransformResult) []string {
	d := result.Directives
	args := []string{src + "[0]"}
	if d.StripMetadata {
		args = append(args, "-strip")
	}
	if d.Progressive {
		args = append(args, "-interlace", "Plane")
	}
	args = append(args,
		"-quality", strconv.Itoa(d.Quality),
		"-sampling-factor", d.ChromaSubsampling,
		"-density", strconv.Itoa(d.Density),
		"-units", d.DensityUnits,
		"-define", "jpeg:dct-method="+d.DCTMethod,
	)
	if result.TargetWidth > 0 {
		args = append(args, "-resize", strconv.Itoa(result.TargetWidth)+"x>")
	}
	return append(args, "jpeg:"+dst)
}

// Encode runs ImageMagick for one image.
func (m *Magick) Encode(ctx context.Context, src, dst string, result TransformResult) error {
	if src == "" || dst == "" {
		return errors.New("source and destination required")
	}
	cmd := commandContext(ctx, m.binary, m.Args(src, dst, result)...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		detail := strings.TrimSpace(string(output))
		if len(detail) > 400 {
			detail = detail[:400]
		}
		return services.Wrap(services.ErrExternalTool, "transcode", "magick", detail, fmt.Errorf("%s: %w", m.binary, err))
	}
	return nil
}

var _ Encoder = (*Magick)(nil)
