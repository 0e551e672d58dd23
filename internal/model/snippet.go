// Package model defines the data structures persisted by the sandbox server.
package model

import "time"

// Snippet is a saved program that can be re-run on demand.
//
// Owner is the API client that created it (empty when the server runs without
// tokens). Only the owner may change or delete an owned snippet.
type Snippet struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Language  string    `json:"language"`
	Code      string    `json:"code"`
	Stdin     string    `json:"input,omitempty"`
	Owner     string    `json:"owner,omitempty"`
	LastRun   *RunInfo  `json:"lastRun,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RunInfo is the outcome of the most recent execution of a snippet.
type RunInfo struct {
	Stdout     string    `json:"output"`
	Stderr     string    `json:"error,omitempty"`
	StatusCode int       `json:"statusCode"`
	Phase      string    `json:"phase"`
	RanAt      time.Time `json:"ranAt"`
}
