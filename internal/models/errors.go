package models

import "errors"

var (
	ErrSessionNotFound   = errors.New("inventory session not found")
	ErrNotDraft          = errors.New("inventory session is not a draft")
	ErrInvalidTransition = errors.New("invalid inventory status transition")
	ErrEmptySession      = errors.New("inventory session has no items")
	ErrProductNotFound   = errors.New("product not found")
)
