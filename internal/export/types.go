// Package export renders job tickets and board spreadsheets.
package export

import (
	"errors"
)

// Result is a rendered export ready to stream. URL is set when the export
// was archived to object storage.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
	URL      string
}

const (
	MimePDF  = "application/pdf"
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	// ErrPDFDependencyMissing indicates no Chromium binary is installed.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
