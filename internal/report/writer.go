package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"courseopt/internal/fileutil"
)

// Formats accepted by Write.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Path returns <logDir>/<courseID>.report.<format>.
func Path(logDir, courseID, format string) string {
	return filepath.Join(logDir, courseID+".report."+extension(format))
}

// RefusedPath returns <logDir>/<courseID>.refused.<format>, the diagnostic
// written when a course could not be started. It never collides with the
// report of the run that holds the course.
func RefusedPath(logDir, courseID, format string) string {
	return filepath.Join(logDir, courseID+".refused."+extension(format))
}

func extension(format string) string {
	if strings.EqualFold(format, FormatYAML) {
		return FormatYAML
	}
	return FormatJSON
}

// Encode renders the report in the requested format.
func Encode(c *Course, format string) ([]byte, error) {
	if strings.EqualFold(format, FormatYAML) {
		data, err := yaml.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("encode report yaml: %w", err)
		}
		return data, nil
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report json: %w", err)
	}
	return append(data, '\n'), nil
}

// Write persists the report atomically and returns its path.
func Write(c *Course, logDir, format string) (string, error) {
	return writeTo(c, logDir, Path(logDir, c.CourseID, format), format)
}

// WriteRefused persists the report of a course that was never started.
func WriteRefused(c *Course, logDir, format string) (string, error) {
	return writeTo(c, logDir, RefusedPath(logDir, c.CourseID, format), format)
}

func writeTo(c *Course, logDir, path, format string) (string, error) {
	data, err := Encode(c, format)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", fmt.Errorf("create log dir: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// Read loads a report written by Write. The format follows the extension.
func Read(path string) (*Course, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Course
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		err = yaml.Unmarshal(data, &c)
	} else {
		err = json.Unmarshal(data, &c)
	}
	if err != nil {
		return nil, fmt.Errorf("decode report %s: %w", path, err)
	}
	return &c, nil
}
