package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/nbgirder/internal/models"
)

var (
	modelTypes = []any{models.TypeFile, models.TypeDirectory, models.TypeNotebook}
	formats    = []any{models.FormatText, models.FormatBase64, models.FormatJSON}
)

// GetQuery holds the query parameters of GET /contents.
type GetQuery struct {
	Type    string
	Format  string
	Content string
}

// Validate implements validation.Validatable.
func (q *GetQuery) Validate() error {
	return validation.ValidateStruct(q,
		validation.Field(&q.Type, validation.In(modelTypes...)),
		validation.Field(&q.Format, validation.In(formats...)),
		validation.Field(&q.Content, validation.In("0", "1")),
	)
}

// SaveRequest is the body of PUT /contents/{path}.
type SaveRequest struct {
	Type     string `json:"type" example:"file"`
	Format   string `json:"format" example:"text"`
	Mimetype string `json:"mimetype" example:"text/plain"`
	Content  any    `json:"content"`
	CopyFrom string `json:"copy_from,omitempty"`
}

// Validate implements validation.Validatable. Missing type and content are left to
// the contents manager, which reports them in its own words.
func (r *SaveRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Type, validation.In(modelTypes...)),
		validation.Field(&r.Format, validation.In(formats...)),
	)
}

// Model converts the request into a content model.
func (r *SaveRequest) Model() *models.Model {
	m := &models.Model{Type: r.Type, Content: r.Content}
	m.SetFormat(r.Format)
	m.SetMimetype(r.Mimetype)
	return m
}

// CreateRequest is the optional body of POST /contents/{dir}.
type CreateRequest struct {
	Type     string `json:"type" example:"notebook"`
	Ext      string `json:"ext" example:".ipynb"`
	CopyFrom string `json:"copy_from" example:"analysis/report.ipynb"`
}

// Validate implements validation.Validatable.
func (r *CreateRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Type, validation.In(modelTypes...)),
	)
}

// RenameRequest is the body of PATCH /contents/{path}.
type RenameRequest struct {
	Path string `json:"path" example:"renamed.ipynb"`
}

// Validate implements validation.Validatable.
func (r *RenameRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Path, validation.Required),
	)
}
