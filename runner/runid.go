package runner

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	runIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	runIDLength   = 8
)

// NewRunID returns a fresh run identifier: eight lowercase alphanumeric
// characters.
func NewRunID() (string, error) {
	return gonanoid.Generate(runIDAlphabet, runIDLength)
}
