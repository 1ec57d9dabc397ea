package imaging

// Format is a raster container detected by file signature.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatBMP     Format = "bmp"
	FormatTIFF    Format = "tiff"
	FormatGIF     Format = "gif"
	FormatWebP    Format = "webp"
	FormatSVG     Format = "svg"
	FormatUnknown Format = "unknown"
)

const (
	MaxWidth   = 1400
	Quality    = 80
	DensityPPI = 72
)

// transcodable is the closed allow-list of formats converted to JPEG.
var transcodable = map[Format]bool{
	FormatJPEG: true,
	FormatPNG:  true,
	FormatBMP:  true,
	FormatTIFF: true,
}

// Transcodable reports whether f is on the allow-list.
func Transcodable(f Format) bool {
	return transcodable[f]
}

// Extension returns the canonical file extension for f.
func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatUnknown, "":
		return ""
	default:
		return "." + string(f)
	}
}

// Directives are the fixed encoding rules applied to every transcoded image.
type Directives struct {
	StripMetadata     bool   `json:"strip_metadata" yaml:"strip_metadata"`
	Progressive       bool   `json:"progressive" yaml:"progressive"`
	Quality           int    `json:"quality" yaml:"quality"`
	ChromaSubsampling string `json:"chroma_subsampling" yaml:"chroma_subsampling"`
	Density           int    `json:"density" yaml:"density"`
	DensityUnits      string `json:"density_units" yaml:"density_units"`
	DCTMethod         string `json:"dct_method" yaml:"dct_method"`
}

// DefaultDirectives returns the fixed output directives.
func DefaultDirectives() Directives {
	return Directives{
		StripMetadata:     true,
		Progressive:       true,
		Quality:           Quality,
		ChromaSubsampling: "4:2:0",
		Density:           DensityPPI,
		DensityUnits:      "PixelsPerInch",
		DCTMethod:         "float",
	}
}

// TransformResult is the decision for one image.
type TransformResult struct {
	// Transcode is false for formats outside the allow-list; such files pass
	// through untouched.
	Transcode    bool       `json:"transcode" yaml:"transcode"`
	TargetWidth  int        `json:"target_width" yaml:"target_width"`
	TargetFormat Format     `json:"target_format" yaml:"target_format"`
	Directives   Directives `json:"directives" yaml:"directives"`
}

// Decide maps an image's natural width and detected format to its transform.
// Widths above MaxWidth are clamped to MaxWidth; anything else is kept
// exactly, so small fixed-geometry assets are never upscaled. Decide is
// idempotent: Decide(r.TargetWidth, r.TargetFormat) == r.
func Decide(width int, format Format) TransformResult {
	result := TransformResult{
		TargetWidth:  width,
		TargetFormat: format,
		Directives:   DefaultDirectives(),
	}
	if !Transcodable(format) {
		return result
	}
	result.Transcode = true
	result.TargetFormat = FormatJPEG
	if width > MaxWidth {
		result.TargetWidth = MaxWidth
	}
	return result
}

// TargetHeight scales height to targetWidth preserving aspect ratio.
func TargetHeight(width, height, targetWidth int) int {
	if width <= 0 || height <= 0 || targetWidth == width {
		return height
	}
	h := (height*targetWidth + width/2) / width
	if h < 1 {
		h = 1
	}
	return h
}
