package model

import "time"

// FileKind classifies a movement attachment.
type FileKind string

// File kinds.
const (
	FileSignature FileKind = "signature"
	FilePhoto     FileKind = "photo"
	FileDocument  FileKind = "document"
)

// Valid reports whether k is a known kind.
func (k FileKind) Valid() bool {
	switch k {
	case FileSignature, FilePhoto, FileDocument:
		return true
	}
	return false
}

// MovementFile is an attachment tied to a movement. For signature files the
// label holds an encoded SignatureLabel.
type MovementFile struct {
	ID           int64     `json:"id" db:"id"`
	MovementID   int64     `json:"movement_id" db:"movement_id"`
	Kind         FileKind  `json:"kind" db:"kind"`
	Label        string    `json:"label,omitempty" db:"label"`
	BlobKey      string    `json:"blob_key" db:"blob_key"`
	BlobURL      string    `json:"blob_url,omitempty" db:"blob_url"`
	MIME         string    `json:"mime,omitempty" db:"mime"`
	OriginalName string    `json:"original_name,omitempty" db:"original_name"`
	UploadedAt   time.Time `json:"uploaded_at" db:"uploaded_at"`
}

// PublicToken is a bearer credential for signing one movement outside a session.
type PublicToken struct {
	ID         int64     `json:"id"`
	MovementID int64     `json:"movement_id"`
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Expired reports whether the token is past its expiry at now.
func (t PublicToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
