package entity

import "fmt"

type FailureKind int

const (
	// ConnectionError indicates that the endpoint could not be reached.
	ConnectionError FailureKind = iota
	// Timeout indicates that no response was obtained within the request timeout.
	Timeout
	// BadStatus indicates that the endpoint answered with a non 2xx code.
	BadStatus
	// SerializationError indicates that the payload could not be built or encoded.
	SerializationError
	// Canceled indicates that the report was aborted by the caller (e.g. on shutdown).
	Canceled
)

func (f FailureKind) String() string {
	switch f {
	case ConnectionError:
		return "connection_error"
	case Timeout:
		return "timeout"
	case BadStatus:
		return "bad_status"
	case SerializationError:
		return "serialization_error"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Outcome is the result of one report attempt.
type Outcome struct {
	// Failed is false for a successful report. Kind, Detail and Code are meaningless in that case.
	Failed bool
	Kind   FailureKind
	Detail string
	// Code holds the http status for BadStatus failures.
	Code int
}

func Success() Outcome {
	return Outcome{}
}

func Failure(kind FailureKind, detail string) Outcome {
	return Outcome{Failed: true, Kind: kind, Detail: detail}
}

func BadStatusFailure(code int) Outcome {
	return Outcome{
		Failed: true,
		Kind:   BadStatus,
		Code:   code,
		Detail: fmt.Sprintf("unexpected status code %d", code),
	}
}

func (o Outcome) IsSuccess() bool {
	return !o.Failed
}

func (o Outcome) String() string {
	if !o.Failed {
		return "success"
	}

	if o.Kind == BadStatus {
		return fmt.Sprintf("%s{%d}: %s", o.Kind, o.Code, o.Detail)
	}

	return fmt.Sprintf("%s: %s", o.Kind, o.Detail)
}
