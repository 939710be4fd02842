package domain

import "errors"

var (
	ErrNotFound            = errors.New("resource not found")
	ErrUnprocessable       = errors.New("document could not be processed")
	ErrRecordNotFound      = errors.New("extraction record not found")
	ErrBatchJobNotFound    = errors.New("batch job not found")
	ErrBatchJobTerminal    = errors.New("batch job already terminal")
	ErrPollTimeout         = errors.New("batch job polling deadline exceeded")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrDownloadFailed      = errors.New("file download from storage failed")
	ErrMissingAPIKey       = errors.New("inference api key not configured")
)
