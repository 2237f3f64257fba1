package rag

import "errors"

// Sentinel errors shared across the retrieval and mutation paths. Callers
// classify failures with errors.Is rather than string matching.
var (
	// ErrStorageUnavailable indicates the vector index or relational store
	// could not be reached. Fatal for the current call.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrNotFound indicates no records matched a lookup or bulk operation.
	ErrNotFound = errors.New("not found")

	// ErrMalformedOutput indicates the model's response failed schema
	// validation in structured-output mode.
	ErrMalformedOutput = errors.New("malformed model output")

	// ErrNoTenant indicates a request arrived without a tenant discriminator.
	// The pipeline never fails open: no tenant means no nodes.
	ErrNoTenant = errors.New("tenant is not set")
)
