package db

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Error Codes
// --------------------------------------------------------------------------

// ErrCode classifies table level failures
type ErrCode uint8

const (
	ErrCodeInternal        ErrCode = iota // 0: Unclassified failure
	ErrCodeTableBusy                      // 1: Operation requires the table to be closed
	ErrCodeEngineOpen                     // 2: The engine instance could not be opened
	ErrCodeEngineIO                       // 3: Read, write or iterate failure
	ErrCodeTableClosed                    // 4: The handle is closing or closed
	ErrCodeInvalidArgument                // 5: Malformed argument (e.g. start > end)
)

func (c ErrCode) String() string {
	switch c {
	case ErrCodeTableBusy:
		return "TableBusy"
	case ErrCodeEngineOpen:
		return "EngineOpen"
	case ErrCodeEngineIO:
		return "EngineIO"
	case ErrCodeTableClosed:
		return "TableClosed"
	case ErrCodeInvalidArgument:
		return "InvalidArgument"
	default:
		return "Internal"
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error wraps an ErrCode, the table it happened on, the operation and the
// underlying cause.
type Error struct {
	Code  ErrCode
	Table uint32
	Op    string
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (table %d, %s)", e.Code, e.Table, e.Op)
	}
	return fmt.Sprintf("%s (table %d, %s): %v", e.Code, e.Table, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error with the given code.
func NewError(code ErrCode, table uint32, op string, err error) *Error {
	return &Error{
		Code:  code,
		Table: table,
		Op:    op,
		Err:   err,
	}
}

// NewTableBusyError is returned when an operation needs the table to be closed first.
func NewTableBusyError(table uint32, op string) *Error {
	return NewError(ErrCodeTableBusy, table, op, errors.New("table is open, close it first"))
}

// NewEngineOpenError is returned when the engine instance for a table cannot be opened.
func NewEngineOpenError(table uint32, err error) *Error {
	return NewError(ErrCodeEngineOpen, table, "open", err)
}

// NewEngineIOError is returned for failures while reading, writing or iterating.
func NewEngineIOError(table uint32, op string, err error) *Error {
	return NewError(ErrCodeEngineIO, table, op, err)
}

// CodeOf returns the ErrCode of err, or ErrCodeInternal if err is not an *Error.
func CodeOf(err error) ErrCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err (or any error it wraps) is an *Error with the given code.
func IsCode(err error, code ErrCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
