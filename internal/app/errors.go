package app

import "errors"

var (
	ErrFileRequired      = errors.New("file is required")
	ErrUserRequired      = errors.New("user id is required")
	ErrUserIDTooLong     = errors.New("user id is too long")
	ErrMessageEmpty      = errors.New("message content is empty")
	ErrMessageTooLong    = errors.New("message content is too long")
	ErrNoExtractedText   = errors.New("no text extracted")
	ErrUnsupportedFile   = errors.New("unsupported file type")
	ErrFileTooLarge      = errors.New("file too large")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrOracleFailed      = errors.New("oracle call failed")
	ErrOracleUnavailable = errors.New("oracle temporarily unavailable")
)
