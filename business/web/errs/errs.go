// Package errs provides the error values the node API hands back to clients.
package errs

import "errors"

// Response is the body sent to a client when a request fails. Fields is only
// set for payloads that failed validation.
type Response struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Trusted is an error whose message is safe to show the client, such as a
// ledger rejection or an unknown account, paired with the HTTP status to
// answer with. Anything not wrapped in a Trusted is reported as a 500.
type Trusted struct {
	Err    error
	Status int
}

// NewTrusted wraps a provided error with an HTTP status code. Handlers use it
// for the outcomes a client can act on: rejected blocks and transactions,
// unknown accounts and bad payloads.
func NewTrusted(err error, status int) error {
	return &Trusted{err, status}
}

// Error implements the error interface. It uses the message of the wrapped
// error, which is what the client and the logs see.
func (te *Trusted) Error() string {
	return te.Err.Error()
}

// Unwrap allows errors.Is to match on the wrapped error, for example a
// rejection kind.
func (te *Trusted) Unwrap() error {
	return te.Err
}

// IsTrusted checks if an error of type Trusted exists.
func IsTrusted(err error) bool {
	var te *Trusted
	return errors.As(err, &te)
}

// GetTrusted returns a copy of the Trusted pointer.
func GetTrusted(err error) *Trusted {
	var te *Trusted
	if !errors.As(err, &te) {
		return nil
	}
	return te
}
