// Package ragerrors defines the error kinds shared across the ingestion and
// retrieval core. Components wrap a sentinel with context via fmt.Errorf's
// %w verb; callers branch on kind with errors.Is, never on message text.
package ragerrors

import "errors"

var (
	// TransientRemote marks a provider/store error the caller should retry
	// with a fixed delay before giving up.
	TransientRemote = errors.New("transient remote error")

	// EmbedFailure means the embedder exhausted its retries for a call.
	EmbedFailure = errors.New("embedding failed")

	// LLMFailure means a chat/completion call to the LLM provider failed.
	// Enrichment callers fall back to a deterministic string and continue;
	// chat callers surface it to the client and persist no assistant message.
	LLMFailure = errors.New("llm call failed")

	// StoreFailure marks an unrecoverable persistence error.
	StoreFailure = errors.New("store operation failed")

	// NoResults is not a failure: retrieval found nothing matching the
	// query and filters.
	NoResults = errors.New("no results")

	// InvalidFilter marks a metadata filter referencing an unknown field or
	// carrying malformed values. The filter is dropped, not the query.
	InvalidFilter = errors.New("invalid filter")

	// SessionNotFound means an operation targeted a session id that does
	// not exist. Side-effect free.
	SessionNotFound = errors.New("session not found")

	// NotFound is a generic not-found sentinel for store lookups that are
	// not session-specific (documents, databases, chunks).
	NotFound = errors.New("not found")
)
