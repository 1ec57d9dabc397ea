package imaging

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"courseopt/internal/logging"
)

// Encoder names.
const (
	EncoderAuto   = "auto"
	EncoderMagick = "magick"
	EncoderNative = "native"
)

// Encoder writes the transformed version of src to dst. dst is always a
// JPEG regardless of its extension.
type Encoder interface {
	Name() string
	Encode(ctx context.Context, src, dst string, result TransformResult) error
}

var lookPath = exec.LookPath

// NewEncoder resolves the configured encoder. "auto" prefers ImageMagick when
// the binary is on PATH and falls back to the native encoder otherwise.
func NewEncoder(kind, magickBinary string, logger *slog.Logger) (Encoder, error) {
	logger = logging.NewComponentLogger(logger, "imaging")
	if strings.TrimSpace(magickBinary) == "" {
		magickBinary = "magick"
	}
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case EncoderMagick:
		if _, err := lookPath(magickBinary); err != nil {
			return nil, fmt.Errorf("imagemagick binary %q not found: %w", magickBinary, err)
		}
		return NewMagick(WithBinary(magickBinary)), nil
	case EncoderNative:
		return NewNative(), nil
	case EncoderAuto, "":
		if _, err := lookPath(magickBinary); err == nil {
			return NewMagick(WithBinary(magickBinary)), nil
		}
		logging.WarnWithContext(logger, "imagemagick not found; using native encoder", "encoder_fallback",
			logging.String("binary", magickBinary),
			logging.String(logging.FieldErrorHint, "install ImageMagick 7 or set imaging.magick_binary"),
			logging.String(logging.FieldImpact, "images are encoded in-process with jpegli"),
		)
		return NewNative(), nil
	default:
		return nil, fmt.Errorf("unknown encoder %q", kind)
	}
}
