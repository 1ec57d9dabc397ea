package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// CourseLogPath returns the per-course log file location.
func CourseLogPath(logDir, courseID string) string {
	return filepath.Join(logDir, courseID+".log")
}

// NewCourseLogger returns a logger that writes to base and additionally to a
// JSON log file dedicated to one course run. The file is truncated on open so
// it always reflects the most recent run. Callers must close the returned
// closer once the course finishes.
func NewCourseLogger(base *slog.Logger, logDir, courseID string, level string) (*slog.Logger, io.Closer, error) {
	courseID = strings.TrimSpace(courseID)
	if courseID == "" {
		return nil, nil, fmt.Errorf("course logger: empty course id")
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("course logger: ensure log dir: %w", err)
	}
	path := CourseLogPath(logDir, courseID)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("course logger: open %s: %w", path, err)
	}

	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(level))
	fileHandler := newJSONHandler(file, levelVar, false)

	logger := TeeLogger(base, fileHandler).With(String(FieldCourseID, courseID))
	return logger, file, nil
}
