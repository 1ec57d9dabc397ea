package preflight

import (
	"courseopt/internal/config"
	"courseopt/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// minFreeBytes is the free space the temporary directory must offer before
// courses are extracted into it.
const minFreeBytes = 512 << 20

// RunAll executes all applicable preflight checks for the given config.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("Source directory", cfg.Paths.SourceDir),
		CheckDirectoryAccess("Optimized directory", cfg.Paths.OptimizedDir),
		CheckDirectoryAccess("Temporary directory", cfg.Paths.TmpDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckFreeSpace("Temporary free space", cfg.Paths.TmpDir, minFreeBytes),
	}
	for _, status := range CheckSystemDeps(cfg) {
		detail := status.Command
		if !status.Available {
			detail = status.Detail
		}
		results = append(results, Result{
			Name:     status.Name,
			Passed:   status.Available,
			Optional: status.Optional,
			Detail:   detail,
		})
	}
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}

// CheckSystemDeps evaluates the external tools for the configured encoder.
// ImageMagick is required when selected explicitly and optional under
// "auto", where the native encoder takes over.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	if cfg.Imaging.Encoder == config.EncoderNative {
		return nil
	}
	command, _ := deps.ResolveMagick(cfg.Imaging.MagickBinary)
	return deps.CheckBinaries([]deps.Requirement{{
		Name:        "ImageMagick",
		Command:     command,
		Description: "Raster transcoding",
		Optional:    cfg.Imaging.Encoder == config.EncoderAuto,
	}})
}
