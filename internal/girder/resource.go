package girder

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind is the _modelType discriminant of a Girder resource.
type Kind string

// Resource kinds.
const (
	KindUser       Kind = "user"
	KindCollection Kind = "collection"
	KindFolder     Kind = "folder"
	KindItem       Kind = "item"
	KindFile       Kind = "file"
)

// Access levels reported in _accessLevel.
const (
	AccessRead  = 0
	AccessWrite = 1
	AccessAdmin = 2
)

// Resource is any node of the remote hierarchy. Which fields are set depends on Kind:
// users carry Login, folders carry ParentID/ParentCollection and AccessLevel, items
// carry FolderID, files carry ItemID, MimeType and Size.
type Resource struct {
	ID               string     `json:"_id"`
	Kind             Kind       `json:"_modelType"`
	Name             string     `json:"name,omitempty"`
	Login            string     `json:"login,omitempty"`
	AccessLevel      int        `json:"_accessLevel"`
	ParentID         string     `json:"parentId,omitempty"`
	ParentCollection string     `json:"parentCollection,omitempty"`
	FolderID         string     `json:"folderId,omitempty"`
	ItemID           string     `json:"itemId,omitempty"`
	MimeType         string     `json:"mimeType,omitempty"`
	Size             int64      `json:"size"`
	Created          Timestamp  `json:"created"`
	Updated          *Timestamp `json:"updated,omitempty"`
}

// DisplayName returns the name, or the login for users.
func (r *Resource) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Login
}

// ModifiedAt returns the update time, falling back to the creation time.
func (r *Resource) ModifiedAt() time.Time {
	if r.Updated != nil && !r.Updated.IsZero() {
		return r.Updated.Time
	}
	return r.Created.Time
}

// IsContainer reports whether the resource can only hold folders (users, collections)
// or folders and items (folders).
func (r *Resource) IsContainer() bool {
	switch r.Kind {
	case KindUser, KindCollection, KindFolder:
		return true
	}
	return false
}

// Timestamp decodes the ISO-8601 variants Girder emits: with or without zone offset,
// with microseconds, and with a space instead of 'T'.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses a Girder timestamp. Values without a zone are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("girder: unrecognised timestamp %q", s)
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("girder: timestamp: %w", err)
	}
	if s == "" {
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}
