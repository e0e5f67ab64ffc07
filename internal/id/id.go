// Package id generates short prefixed identifiers for runs, locks and uploads.
// Database rows use integer keys; these ids never reach a table.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes used across the server.
const (
	PrefixRun    = "run"
	PrefixLock   = "lk"
	PrefixSample = "smp"
)

// sampleAlphabet avoids characters some multipart parsers mangle in filenames.
const sampleAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Generate returns prefix + "-" + a 21 character nanoid,
// e.g. "run-V1StGXR8_Z5jdHi6B-myT".
func Generate(prefix string) (string, error) {
	v, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + v, nil
}

// FileName returns a lowercase alphanumeric name suitable for an uploaded
// sample, keeping ext (with its dot).
func FileName(prefix, ext string) (string, error) {
	v, err := gonanoid.Generate(sampleAlphabet, 12)
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + v + ext, nil
}
