package parser

import "errors"

// ErrNoPages is wrapped into core.ErrCorruptDocument when a non-empty file
// produced no text at all.
var ErrNoPages = errors.New("no text extracted")
