package models

import "errors"

var (
	// ErrExtraction means the document engine could not parse the file.
	ErrExtraction = errors.New("extraction failed")
	// ErrEmbeddingUnavailable means the embedding capability is missing or failing.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrBuildFailed means index construction failed and partial state was rolled back.
	ErrBuildFailed = errors.New("collection build failed")
	// ErrNotFound means no collection is registered for the requested identity.
	ErrNotFound = errors.New("collection not found")
	// ErrEmptyQuestion means a chat question was blank after trimming.
	ErrEmptyQuestion = errors.New("question cannot be empty")
)

// ErrGeneration means the answer generator failed.
var ErrGeneration = errors.New("answer generation failed")
