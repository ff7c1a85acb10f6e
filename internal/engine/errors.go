package engine

import (
	"errors"

	"github.com/vkolb/waldb/internal/protocol"
	sqlite "modernc.org/sqlite"
)

// SQLite result code bases (lower 8 bits of an extended result code), per
// https://www.sqlite.org/rescode.html.
const (
	sqliteBusy      = 5
	sqliteLocked    = 6
	sqliteIoErr     = 10
	sqliteCorrupt   = 11
	sqliteConstraint = 19
)

// ClassifyError maps a SQL execution error onto one of the stable error
// codes named by the error handling design. Errors the engine didn't
// originate (e.g. a canceled context) fall through to CodeSql, matching
// the "everything else" rule for Sql.
func ClassifyError(err error) protocol.ErrorCode {
	if err == nil {
		return ""
	}

	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return protocol.CodeSql
	}

	base := sqliteErr.Code() & 0xff
	switch base {
	case sqliteConstraint:
		return protocol.CodeConstraint
	case sqliteBusy, sqliteLocked:
		return protocol.CodeBusy
	case sqliteIoErr, sqliteCorrupt:
		return protocol.CodeIoError
	default:
		return protocol.CodeSql
	}
}

// ToCodedError wraps err with the ErrorCode ClassifyError derives for it.
func ToCodedError(err error) *protocol.CodedError {
	if err == nil {
		return nil
	}
	return protocol.NewCodedError(ClassifyError(err), err)
}
