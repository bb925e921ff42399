// Package syncerr описывает классы ошибок синхронизации с панелью.
//
// ConfigurationError и ошибки чтения полного списка прерывают весь прогон.
// RemoteError и LocalError относятся к одной записи: прогон их считает и идёт дальше.
// ValidationError отклоняет входные данные до любых изменений.
package syncerr

import (
	"errors"
	"fmt"
)

const (
	CodeNotConfigured = "NOT_CONFIGURED"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeTransport     = "TRANSPORT"
	CodeDecode        = "DECODE"
	CodeNotFound      = "NOT_FOUND"
	CodeRateLimited   = "RATE_LIMITED"
	CodeUnknown       = "UNKNOWN"
)

type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "remnawave panel is not configured: " + e.Reason
}

// RemoteError - отказ одной операции в панели. Code машинно-читаемый: errorCode панели либо один из Code*.
type RemoteError struct {
	Op     string
	Code   string
	Status int
	Msg    string
	Err    error
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("remnawave %s failed [%s]", e.Op, e.Code)
	if e.Status != 0 {
		msg += fmt.Sprintf(" status=%d", e.Status)
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteError) Unwrap() error { return e.Err }

type LocalError struct {
	Op  string
	Err error
}

func (e *LocalError) Error() string {
	return fmt.Sprintf("local store %s failed: %v", e.Op, e.Err)
}

func (e *LocalError) Unwrap() error { return e.Err }

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func NotConfigured(reason string) *ConfigurationError {
	return &ConfigurationError{Reason: reason}
}

func Remotef(op, code string, format string, args ...interface{}) *RemoteError {
	return &RemoteError{Op: op, Code: code, Msg: fmt.Sprintf(format, args...)}
}

func Local(op string, err error) error {
	if err == nil {
		return nil
	}
	return &LocalError{Op: op, Err: err}
}

func Validationf(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// RemoteCode возвращает код RemoteError или пустую строку
func RemoteCode(err error) string {
	var target *RemoteError
	if errors.As(err, &target) {
		return target.Code
	}
	return ""
}
