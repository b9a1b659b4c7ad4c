package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind partitions remote failures into the closed set the sync layer
// switches on. Anything not retryable and not an auth problem is Permanent.
type Kind int

const (
	KindTransient Kind = iota
	KindAuthExpired
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindAuthExpired:
		return "auth_expired"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Error is the single error type produced at the client boundary.
// Status is zero for pure network failures.
type Error struct {
	Kind    Kind
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote: %s (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("remote: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("remote: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// retryableStatuses is the whitelist of transient HTTP conditions.
var retryableStatuses = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

func classifyStatus(status int) Kind {
	switch {
	case retryableStatuses[status]:
		return KindTransient
	case status == http.StatusUnauthorized:
		return KindAuthExpired
	default:
		return KindPermanent
	}
}

func IsTransient(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == KindTransient
}

func IsAuthExpired(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == KindAuthExpired
}

func IsPermanent(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == KindPermanent
}

// StatusOf returns the HTTP status carried by err, or zero.
func StatusOf(err error) int {
	var re *Error
	if errors.As(err, &re) {
		return re.Status
	}
	return 0
}
