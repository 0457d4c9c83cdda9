package errors

import (
	"errors"
	"fmt"
)

// CodeError pairs an HTTP-ish status code with a message so handlers can map
// service failures without string matching.
type CodeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
}

func NewCodeError(code int, message string) *CodeError {
	return &CodeError{Code: code, Message: message}
}

func FromError(err error) *CodeError {
	if err == nil {
		return nil
	}
	var codeErr *CodeError
	if errors.As(err, &codeErr) {
		return codeErr
	}
	return NewCodeError(500, err.Error())
}

var (
	ErrAlertNotFound      = NewCodeError(404, "alert not found")
	ErrAlreadyResolved    = NewCodeError(409, "alert is already resolved")
	ErrAlertExpired       = NewCodeError(409, "alert has expired")
	ErrInvalidTransition  = NewCodeError(409, "alert cannot change to that state")
	ErrInvalidCredentials = NewCodeError(401, "invalid credentials")
	ErrAccountDisabled    = NewCodeError(403, "account is disabled")
)
