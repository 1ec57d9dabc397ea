package imaging

import "testing"

func TestDecideWidthInvariants(t *testing.T) {
	tests := []struct {
		width int
		want  int
	}{
		{1, 1},
		{300, 300},
		{675, 675},
		{1400, 1400},
		{1401, 1400},
		{2280, 1400},
	}
	for _, tt := range tests {
		for _, format := range []Format{FormatPNG, FormatJPEG, FormatBMP, FormatTIFF} {
			got := Decide(tt.width, format)
			if !got.Transcode || got.TargetFormat != FormatJPEG {
				t.Fatalf("Decide(%d, %s) should transcode to jpeg: %+v", tt.width, format, got)
			}
			if got.TargetWidth != tt.want {
				t.Fatalf("Decide(%d, %s) width = %d, want %d", tt.width, format, got.TargetWidth, tt.want)
			}
		}
	}
}

func TestDecideIdempotent(t *testing.T) {
	formats := []Format{FormatPNG, FormatJPEG, FormatBMP, FormatTIFF, FormatGIF, FormatWebP, FormatSVG, FormatUnknown}
	for _, width := range []int{0, 1, 675, 1400, 1401, 2280} {
		for _, format := range formats {
			first := Decide(width, format)
			second := Decide(first.TargetWidth, first.TargetFormat)
			if first != second {
				t.Fatalf("Decide not idempotent for (%d, %s): %+v then %+v", width, format, first, second)
			}
		}
	}
}

func TestDecidePassThrough(t *testing.T) {
	for _, format := range []Format{FormatGIF, FormatWebP, FormatSVG, FormatUnknown} {
		got := Decide(2280, format)
		if got.Transcode || got.TargetFormat != format || got.TargetWidth != 2280 {
			t.Fatalf("%s should pass through untouched: %+v", format, got)
		}
	}
}

func TestDirectives(t *testing.T) {
	d := Decide(10, FormatPNG).Directives
	want := Directives{
		StripMetadata:     true,
		Progressive:       true,
		Quality:           80,
		ChromaSubsampling: "4:2:0",
		Density:           72,
		DensityUnits:      "PixelsPerInch",
		DCTMethod:         "float",
	}
	if d != want {
		t.Fatalf("directives = %+v", d)
	}
}

func TestTargetHeight(t *testing.T) {
	if got := TargetHeight(2280, 1140, 1400); got != 700 {
		t.Fatalf("TargetHeight = %d, want 700", got)
	}
	if got := TargetHeight(300, 200, 300); got != 200 {
		t.Fatalf("unchanged width should keep height, got %d", got)
	}
	if got := TargetHeight(5000, 1, 1400); got != 1 {
		t.Fatalf("height must stay positive, got %d", got)
	}
}

func TestExtension(t *testing.T) {
	if FormatJPEG.Extension() != ".jpg" || FormatPNG.Extension() != ".png" || FormatUnknown.Extension() != "" {
		t.Fatal("unexpected extensions")
	}
}
