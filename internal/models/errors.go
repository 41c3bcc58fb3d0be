package models

import "errors"

// Sentinel errors shared by stores, services and handlers.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
)
