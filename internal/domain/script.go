package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// ScriptRecord is one owned, versioned unit of user-provided script source.
// ID and OwnerID are assigned at creation and never change afterwards.
// Version starts at 1 and increments by exactly 1 on every accepted update.
type ScriptRecord struct {
	ID            string
	OwnerID       string
	Name          string
	Description   string
	Content       string
	ContentSHA256 string
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (r ScriptRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("script id is required")
	}
	if strings.TrimSpace(r.OwnerID) == "" {
		return errors.New("script owner is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("script name is required")
	}
	if r.Content == "" {
		return errors.New("script content is required")
	}
	if r.ContentSHA256 != ContentSHA256(r.Content) {
		return errors.New("content sha256 does not match content")
	}
	if r.Version < 1 {
		return errors.New("script version must be >= 1")
	}
	if r.CreatedAt.IsZero() {
		return errors.New("created at is required")
	}
	if r.UpdatedAt.Before(r.CreatedAt) {
		return errors.New("updated at must not precede created at")
	}
	return nil
}

// Clone returns an independent copy. Stores hand out clones so that caller
// mutation can never reach stored state. Every field is a value type today,
// so a struct copy is already a deep copy; callers must still go through
// Clone so that invariant survives the record growing nested fields.
func (r ScriptRecord) Clone() ScriptRecord {
	return r
}

// ContentSHA256 is the integrity hash recorded next to script content.
func ContentSHA256(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
