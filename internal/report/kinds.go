package report

import (
	"context"
	"errors"

	"courseopt/internal/services"
)

// Kind classifies a warning or failure.
type Kind string

// Accumulated kinds never fail a course on their own.
const (
	KindParseWarning     Kind = "ParseWarning"
	KindReconcileWarning Kind = "ReconcileWarning"
	KindDeleteFailure    Kind = "DeleteFailure"
	KindTranscodeFailure Kind = "TranscodeFailure"
)

// Fatal kinds end the course run.
const (
	KindReferenceRewriteFailure Kind = "ReferenceRewriteFailure"
	KindExtractionFailure       Kind = "ExtractionFailure"
	KindPackagingFailure        Kind = "PackagingFailure"
	KindManifestWriteFailure    Kind = "ManifestWriteFailure"
	KindTimeout                 Kind = "Timeout"
	KindInternalFailure         Kind = "InternalFailure"
)

// KindOf maps an error to its report kind. Timeouts and cancellation win
// over the marker the failing step attached.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case services.IsTimeout(err), errors.Is(err, context.Canceled):
		return KindTimeout
	case errors.Is(err, services.ErrReferenceRewrite):
		return KindReferenceRewriteFailure
	case errors.Is(err, services.ErrManifestWrite):
		return KindManifestWriteFailure
	case errors.Is(err, services.ErrExtraction):
		return KindExtractionFailure
	case errors.Is(err, services.ErrPackaging):
		return KindPackagingFailure
	case errors.Is(err, services.ErrTranscode):
		return KindTranscodeFailure
	default:
		return KindInternalFailure
	}
}

// Fatal reports whether a kind fails the course.
func (k Kind) Fatal() bool {
	switch k {
	case "", KindParseWarning, KindReconcileWarning, KindDeleteFailure, KindTranscodeFailure:
		return false
	default:
		return true
	}
}
