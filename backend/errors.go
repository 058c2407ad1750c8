package backend

import (
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

var (
	ErrInvalidParameter   = errors.New("invalid parameter")
	ErrConnectionFailure  = errors.New("connection failure")
	ErrStatementFailure   = errors.New("statement failure")
	ErrAlreadyInitialized = errors.New("adapter already initialized")
	ErrUnknownBackend     = errors.New("unknown backend")
)

// ConnectionError 打开或探测连接失败，Err 为驱动返回的原始错误
type ConnectionError struct {
	Backend string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrConnectionFailure, e.Backend, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnectionFailure
}

// StatementError 语句执行失败，SQL 为失败的语句
type StatementError struct {
	SQL string
	Err error
}

func (e *StatementError) Error() string {
	if code := e.Code(); code != 0 {
		return fmt.Sprintf("%s: [%d] %v: %s", ErrStatementFailure, code, e.Err, e.SQL)
	}
	return fmt.Sprintf("%s: %v: %s", ErrStatementFailure, e.Err, e.SQL)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

func (e *StatementError) Is(target error) bool {
	return target == ErrStatementFailure
}

// Code 返回 MySQL 错误码，非 MySQL 错误返回 0
func (e *StatementError) Code() uint16 {
	var mysqlErr *mysql.MySQLError
	if errors.As(e.Err, &mysqlErr) {
		return mysqlErr.Number
	}
	return 0
}

// WrapStatement 将驱动错误包装为 StatementError，nil 返回 nil
func WrapStatement(query string, err error) error {
	if err == nil {
		return nil
	}
	var stmtErr *StatementError
	if errors.As(err, &stmtErr) {
		return err
	}
	return &StatementError{SQL: query, Err: err}
}
