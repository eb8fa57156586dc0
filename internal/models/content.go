// Package models defines the content model exchanged with notebook clients.
package models

import "time"

// Content types.
const (
	TypeFile      = "file"
	TypeDirectory = "directory"
	TypeNotebook  = "notebook"
)

// Content formats.
const (
	FormatText   = "text"
	FormatBase64 = "base64"
	FormatJSON   = "json"
)

// Model is the document shape returned by every read and accepted by writes.
//
// Content holds a string for files, []Model for directory listings and a
// notebook.Notebook (map) for notebooks. It is nil when content was not requested.
type Model struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Type         string    `json:"type"`
	Writable     bool      `json:"writable"`
	Created      time.Time `json:"created"`
	LastModified time.Time `json:"last_modified"`
	Mimetype     *string   `json:"mimetype"`
	Format       *string   `json:"format"`
	Content      any       `json:"content"`
	Size         *int64    `json:"size,omitempty"`
	Message      *string   `json:"message,omitempty"`
}

// SetFormat sets the format field; an empty value clears it.
func (m *Model) SetFormat(format string) {
	if format == "" {
		m.Format = nil
		return
	}
	m.Format = &format
}

// SetMimetype sets the mimetype field; an empty value clears it.
func (m *Model) SetMimetype(mimetype string) {
	if mimetype == "" {
		m.Mimetype = nil
		return
	}
	m.Mimetype = &mimetype
}

// FormatValue returns the format or "" when unset.
func (m *Model) FormatValue() string {
	if m.Format == nil {
		return ""
	}
	return *m.Format
}

// MimetypeValue returns the mimetype or "" when unset.
func (m *Model) MimetypeValue() string {
	if m.Mimetype == nil {
		return ""
	}
	return *m.Mimetype
}

// Listing returns the child models of a directory model.
func (m *Model) Listing() []Model {
	children, _ := m.Content.([]Model)
	return children
}
