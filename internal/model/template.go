package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Template is an admin-curated program package users can buy an instance of.
type Template struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	FilePath   string    `json:"file_path" db:"file_path"`
	RunCommand string    `json:"run_command" db:"run_command"`
	Price      float64   `json:"price" db:"price"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// IsArchive reports whether the packaged source is a zip archive rather
// than a single file.
func (t *Template) IsArchive() bool {
	return strings.HasSuffix(strings.ToLower(t.FilePath), ".zip")
}
