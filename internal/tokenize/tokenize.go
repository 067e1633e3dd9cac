// Package tokenize provides a single, process-wide shared token counter.
//
// Sizing decisions throughout the ingestion and chunking code all go through
// this package so a "token" means the same thing everywhere: a cl100k_base
// BPE token, matching the embedding provider's own accounting.
package tokenize

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter counts tokens in text using a fixed BPE encoding. It holds no
// mutable state beyond the loaded encoding table and is safe for concurrent
// use by any number of goroutines.
type Counter struct {
	enc *tiktoken.Tiktoken
}

var (
	defaultOnce    sync.Once
	defaultCounter *Counter
	defaultErr     error
)

// New loads the cl100k_base encoding and returns a Counter. Loading the
// encoding is the only expensive part of this package; callers should build
// one Counter per process and share it.
func New() (*Counter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &Counter{enc: enc}, nil
}

// Default returns a process-wide shared Counter, lazily initialized on first
// use. It panics if the encoding table cannot be loaded, since every sizing
// decision in the system depends on it being available.
func Default() *Counter {
	defaultOnce.Do(func() {
		defaultCounter, defaultErr = New()
	})
	if defaultErr != nil {
		panic("tokenize: failed to load cl100k_base encoding: " + defaultErr.Error())
	}
	return defaultCounter
}

// Count returns the number of BPE tokens in s.
func (c *Counter) Count(s string) int {
	if s == "" {
		return 0
	}
	return len(c.enc.Encode(s, nil, nil))
}
