// Package errors carries the structured error type shared between the
// API handlers, the wire types, and the reader's HTTP client.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/privkeyio/Nostr-Feedz-sub000/internal/feedz"
)

// Error represents a universal error type between the services.
type Error struct {
	Status  int
	Err     error // The error this wraps
	Details []Detail
}

type Detail struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s, details: %v", e.Status, e.Err, e.Details)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type transport struct {
	Message string   `json:"message"`
	Details []Detail `json:"details"`
	Status  int      `json:"status"`
}

func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(transport{
		Message: e.Err.Error(),
		Details: e.Details,
		Status:  e.Status,
	})
}

func (e *Error) UnmarshalJSON(byts []byte) error {
	t := transport{}
	if err := json.Unmarshal(byts, &t); err != nil {
		return err
	}

	e.Err = errors.New(t.Message)
	e.Details = t.Details
	e.Status = t.Status
	return nil
}

func E(args ...any) *Error {
	ret := &Error{
		Status:  http.StatusInternalServerError,
		Err:     nil,
		Details: nil,
	}

	for _, arg := range args {
		switch arg := arg.(type) {
		case string:
			ret.Err = errors.New(arg)
		case error:
			ret.Err = arg
		case int:
			ret.Status = arg
		case Detail:
			ret.Details = append(ret.Details, arg)
		case []Detail:
			ret.Details = append(ret.Details, arg...)
		}
	}

	return ret
}

// FromDomain maps the domain sentinels onto HTTP statuses so handlers
// can return repository errors directly.
func FromDomain(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, feedz.ErrNotFound):
		return E(err, http.StatusNotFound)
	case errors.Is(err, feedz.ErrConflict):
		return E(err, http.StatusConflict)
	default:
		return err
	}
}
