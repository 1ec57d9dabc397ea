package imaging

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"strings"

	"github.com/gen2brain/jpegli"
	"golang.org/x/image/draw"
)

// Native decodes and resamples with x/image and encodes through jpegli, so
// progressive scans, chroma subsampling and the DCT method all follow the
// directives without an external binary. Metadata is dropped because only
// pixels are re-encoded.
type Native struct{}

// NewNative constructs the in-process encoder.
func NewNative() *Native { return &Native{} }

// Name identifies the encoder in reports.
func (n *Native) Name() string { return EncoderNative }

// Encode decodes src, resamples it if needed and writes a JPEG to dst.
func (n *Native) Encode(ctx context.Context, src, dst string, result TransformResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	img, _, err := image.Decode(bufio.NewReader(in))
	_ = in.Close()
	if err != nil {
		return fmt.Errorf("decode %s: %w", src, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	targetW := width
	if result.TargetWidth > 0 && result.TargetWidth < width {
		targetW = result.TargetWidth
	}
	targetH := TargetHeight(width, height, targetW)

	// JPEG has no alpha; composite onto white before scaling.
	canvas := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if targetW == width {
		draw.Draw(canvas, canvas.Bounds(), img, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(canvas, canvas.Bounds(), img, bounds, draw.Over, nil)
	}

	var buf bytes.Buffer
	quality := result.Directives.Quality
	if quality <= 0 {
		quality = Quality
	}
	if err := jpegli.Encode(&buf, canvas, jpegliOptions(result.Directives, quality)); err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}
	out := withJFIFDensity(buf.Bytes(), result.Directives.Density)
	return os.WriteFile(dst, out, 0o644)
}

func jpegliOptions(d Directives, quality int) *jpegli.EncodingOptions {
	opts := &jpegli.EncodingOptions{
		Quality:              quality,
		ChromaSubsampling:    subsampleRatio(d.ChromaSubsampling),
		OptimizeCoding:       true,
		AdaptiveQuantization: true,
		FancyDownsampling:    true,
		DCTMethod:            dctMethod(d.DCTMethod),
	}
	if d.Progressive {
		opts.ProgressiveLevel = 2
	}
	return opts
}

func subsampleRatio(s string) image.YCbCrSubsampleRatio {
	switch strings.TrimSpace(s) {
	case "4:4:4":
		return image.YCbCrSubsampleRatio444
	case "4:4:0":
		return image.YCbCrSubsampleRatio440
	case "4:2:2":
		return image.YCbCrSubsampleRatio422
	default:
		return image.YCbCrSubsampleRatio420
	}
}

func dctMethod(s string) jpegli.DCTMethod {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fast", "ifast":
		return jpegli.DCTIFast
	case "slow", "islow", "int":
		return jpegli.DCTISlow
	default:
		return jpegli.DCTFloat
	}
}

// withJFIFDensity sets the JFIF APP0 density to dpi pixels per inch. An
// existing JFIF segment right after SOI is patched in place; otherwise one is
// inserted.
func withJFIFDensity(data []byte, dpi int) []byte {
	if dpi <= 0 || len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		return data
	}
	if len(data) >= 18 && data[2] == 0xFF && data[3] == 0xE0 && bytes.Equal(data[6:11], []byte("JFIF\x00")) {
		out := bytes.Clone(data)
		out[13] = 0x01
		out[14], out[15] = byte(dpi>>8), byte(dpi)
		out[16], out[17] = byte(dpi>>8), byte(dpi)
		return out
	}
	app0 := []byte{
		0xFF, 0xE0, 0x00, 0x10,
		'J', 'F', 'I', 'F', 0x00,
		0x01, 0x01,
		0x01,
		byte(dpi >> 8), byte(dpi), byte(dpi >> 8), byte(dpi),
		0x00, 0x00,
	}
	out := make([]byte, 0, len(data)+len(app0))
	out = append(out, data[:2]...)
	out = append(out, app0...)
	return append(out, data[2:]...)
}

var _ Encoder = (*Native)(nil)
