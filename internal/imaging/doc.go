// Package imaging holds the raster image policy and the encoders that apply it.
//
// Decide is a pure function from (natural width, detected format) to a
// TransformResult: JPEG output, downscale to 1400 pixels wide, never upscale,
// quality 80 progressive 4:2:0 with metadata stripped and a 72 ppi density
// tag. Formats are detected by signature and only an explicit allow-list is
// transcoded. Two encoders apply a result: the ImageMagick CLI and a pure Go
// fallback.
package imaging
