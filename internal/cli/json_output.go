// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - --json output for scripting.
//
// Every headless command prints one JSONResponse so the output can be fed
// to jq or a log pipeline.

package cli

import (
	"encoding/json"
	"io"
	"time"
)

// JSONResponse is the envelope of every --json result.
type JSONResponse struct {
	Success bool `json:"success"`

	// Data is the command-specific payload.
	Data any `json:"data"`

	// Error is nil on success.
	Error     *string `json:"error"`
	ErrorType string  `json:"error_type,omitempty"`

	// Timestamp is RFC 3339 UTC.
	Timestamp string `json:"timestamp"`
	Command   string `json:"command,omitempty"`
}

// NewJSONResponse creates a successful response.
func NewJSONResponse(command string, data any) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates a failed response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	msg := err.Error()
	return &JSONResponse{
		Error:     &msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Write prints the response as indented JSON.
func (r *JSONResponse) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// =============================================================================
// COMMAND PAYLOADS
// =============================================================================

// VerifyData is the payload of `squidops verify`.
type VerifyData struct {
	API              string `json:"api"`
	State            string `json:"state"`
	SecondFactor     bool   `json:"second_factor"`
	SessionExpiresAt string `json:"session_expires_at"`
}

// SkillsData is the payload of `squidops skills`.
type SkillsData struct {
	Filter string       `json:"filter"`
	Sort   string       `json:"sort"`
	Total  int          `json:"total"`
	Skills []SkillEntry `json:"skills"`
}

// SkillEntry is one row of SkillsData.
type SkillEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Agent    string `json:"agent"`
	Category string `json:"category"`
	Active   bool   `json:"active"`
	Trust    int    `json:"trust"`
	Jobs     int64  `json:"jobs"`
}

// ExportData is the payload of `squidops export`.
type ExportData struct {
	Kind   string `json:"kind"`
	Format string `json:"format"`
	Path   string `json:"path"`
	Rows   int    `json:"rows"`
}

// ConfigPathData is the payload of `squidops config path`.
type ConfigPathData struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

// VersionData is the payload of `squidops version`.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}
