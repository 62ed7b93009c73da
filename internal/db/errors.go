package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrKeyNotFound   = errors.New("db: key not found")
	ErrIndexExists   = errors.New("db: index already exists")
	ErrInvalidQuery  = errors.New("db: invalid query")
	ErrNotConfigured = errors.New("db: kind schema not configured")
)

// Op names give driver errors context.
const (
	OpCreateIndex = "FT.CREATE"
	OpAggregate   = "FT.AGGREGATE"
	OpHSet        = "HSET"
	OpHGetAll     = "HGETALL"
	OpTouch       = "TOUCH"
	OpFind        = "FIND"
	OpUpsert      = "UPSERT"
	OpGet         = "GET"
	OpQuery       = "QUERY"
	OpCreateTable = "CREATE TABLE"
	OpScan        = "SCAN"
	OpPing        = "PING"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
