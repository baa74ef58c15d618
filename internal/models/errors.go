package models

import (
	"errors"
)

var (
	ErrInvalidReference  = errors.New("invalid reference")
	ErrNotFound          = errors.New("not found")
	ErrNetwork           = errors.New("network error")
	ErrNoTranscript      = errors.New("no usable transcript")
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrNoReferences      = errors.New("nothing to process")
)

// ErrorKind names the category of err for logs, job records and exit codes.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidReference):
		return "invalid_reference"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNetwork):
		return "network_error"
	case errors.Is(err, ErrNoTranscript):
		return "no_transcript"
	case errors.Is(err, ErrEngineUnavailable):
		return "engine_unavailable"
	case errors.Is(err, ErrNoReferences):
		return "no_references"
	default:
		return "unexpected"
	}
}

const (
	ExitOK                = 0
	ExitUnexpected        = 1
	ExitUsage             = 2
	ExitInvalidReference  = 3
	ExitNotFound          = 4
	ExitNetwork           = 5
	ExitNoTranscript      = 6
	ExitEngineUnavailable = 7
	ExitPartialFailure    = 8
)

func ExitCode(err error) int {
	switch ErrorKind(err) {
	case "":
		return ExitOK
	case "invalid_reference", "no_references":
		return ExitInvalidReference
	case "not_found":
		return ExitNotFound
	case "network_error":
		return ExitNetwork
	case "no_transcript":
		return ExitNoTranscript
	case "engine_unavailable":
		return ExitEngineUnavailable
	default:
		return ExitUnexpected
	}
}
