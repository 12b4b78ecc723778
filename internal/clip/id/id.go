// Package id provides identifier generation for uploads, renders and sessions.
package id

import (
	"fmt"

	"github.com/google/uuid"
)

// Generate creates a new unique upload ID.
// Format: upl-<uuid>
// Example: upl-9b2e4f0c-1c3d-4f6a-8e7b-2a1d3c4b5e6f
func Generate() string {
	return "upl-" + uuid.NewString()
}

// Render creates a new unique render ID, used to correlate log lines.
func Render() string {
	return "rnd-" + uuid.NewString()
}

// Session creates a new unique browser session ID.
func Session() string {
	return "ses-" + uuid.NewString()
}

// ClipKey derives the registry identifier for an upload from its file name,
// size and upload ID. Two uploads of the same file get distinct keys.
func ClipKey(name string, size int64, uploadID string) string {
	return fmt.Sprintf("%s-%d-%s", name, size, uploadID)
}
