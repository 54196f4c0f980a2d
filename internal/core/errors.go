package core

import "errors"

var (
	// ErrCollectionMissing is returned at startup when the target collection
	// does not exist and may not be created.
	ErrCollectionMissing = errors.New("vector collection missing")

	// ErrUnsupportedContent marks catalog entries that are not PDF files.
	ErrUnsupportedContent = errors.New("unsupported content type")

	// ErrMixedDocumentRefs is returned when an upsert batch spans several documents.
	ErrMixedDocumentRefs = errors.New("chunks belong to different documents")

	// ErrEncoderMismatch indicates an encoder returned the wrong number or size of vectors.
	ErrEncoderMismatch = errors.New("encoder output mismatch")

	// ErrInvalidEntry marks catalog entries that fail validation.
	ErrInvalidEntry = errors.New("invalid catalog entry")
)
