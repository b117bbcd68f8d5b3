package workbook

import (
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// ErrNoWorkbook is returned by calls that need a workbook when the session
// never acquired one.
var ErrNoWorkbook = errors.New("no workbook in session")

// StatusError reports a response whose status code differs from the one the
// operation expects.
type StatusError struct {
	Operation string
	Expected  int
	Got       int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d (want %d)", e.Operation, e.Got, e.Expected)
}

// ContractError reports a success response whose body does not match the
// documented shape.
type ContractError struct {
	Operation string
	Detail    string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%s: response violates contract: %s", e.Operation, e.Detail)
}

// Response is the outcome of one API call.
type Response struct {
	Operation  string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// IsSuccess returns true if the response status code is in the 2xx range
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// ID returns the "id" field of a JSON body in string form, or "".
func (r *Response) ID() string {
	result := gjson.GetBytes(r.Body, "id")
	if !result.Exists() || result.Type == gjson.Null {
		return ""
	}
	return result.String()
}

// reason condenses a failure into a short, groupable description.
func reason(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return fmt.Sprintf("unexpected status %d", statusErr.Got)
	}
	var contractErr *ContractError
	if errors.As(err, &contractErr) {
		return "contract: " + contractErr.Detail
	}
	return err.Error()
}
