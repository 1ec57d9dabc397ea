package imaging

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Asset describes one image file on disk.
type Asset struct {
	Path   string `json:"-" yaml:"-"`
	Format Format `json:"format" yaml:"format"`
	Width  int    `json:"width" yaml:"width"`
	Height int    `json:"height" yaml:"height"`
	Bytes  int64  `json:"bytes" yaml:"bytes"`
	// DPI is the horizontal density tag, 0 when absent.
	DPI int `json:"dpi,omitempty" yaml:"dpi,omitempty"`
}

// probeHeadLen bounds how much of a file is buffered for signature and
// density parsing. Dimensions are decoded from a stream over the open file.
const probeHeadLen = 64 << 10

// Probe reads format, dimensions, size and density of the file at path.
// Formats without a decoder (SVG, unknown) report zero dimensions and are
// never read past their first bytes.
func Probe(path string) (Asset, error) {
	f, err := os.Open(path)
	if err != nil {
		return Asset{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return Asset{}, err
	}
	head := make([]byte, probeHeadLen)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return Asset{}, err
	}
	head = head[:n]
	asset := Asset{Path: path, Bytes: info.Size(), Format: Detect(head[:min(n, sniffLen)])}
	switch asset.Format {
	case FormatSVG, FormatUnknown:
		return asset, nil
	}
	cfg, _, err := image.DecodeConfig(bufio.NewReader(io.MultiReader(bytes.NewReader(head), f)))
	if err != nil {
		return asset, fmt.Errorf("decode %s header: %w", asset.Format, err)
	}
	asset.Width, asset.Height = cfg.Width, cfg.Height
	switch asset.Format {
	case FormatJPEG:
		asset.DPI = jfifDensity(head)
	case FormatPNG:
		asset.DPI = pngDensity(head)
	}
	return asset, nil
}

// jfifDensity returns the X density of a JFIF APP0 segment in dots per inch.
func jfifDensity(data []byte) int {
	if len(data) < 20 || data[2] != 0xFF || data[3] != 0xE0 || !bytes.Equal(data[6:11], []byte("JFIF\x00")) {
		return 0
	}
	units := data[13]
	x := int(binary.BigEndian.Uint16(data[14:16]))
	switch units {
	case 1:
		return x
	case 2:
		return int(math.Round(float64(x) * 2.54))
	default:
		return 0
	}
}

// pngDensity reads the pHYs chunk.
func pngDensity(data []byte) int {
	pos := 8
	for pos+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		kind := string(data[pos+4 : pos+8])
		body := pos + 8
		if kind == "pHYs" && length == 9 && body+9 <= len(data) {
			ppu := binary.BigEndian.Uint32(data[body : body+4])
			if data[body+8] == 1 {
				return int(math.Round(float64(ppu) * 0.0254))
			}
			return 0
		}
		if kind == "IDAT" || kind == "IEND" {
			return 0
		}
		pos = body + length + 4
	}
	return 0
}
