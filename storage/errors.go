package storage

// Err is a simple string error helper.
type Err string

func (e Err) Error() string { return string(e) }

var (
	ErrTaskNotFound    = Err("task not found")
	ErrDisputeNotFound = Err("dispute not found")
	ErrWalletNotFound  = Err("no wallet address on file for user")
	ErrTaskImmutable   = Err("paid tasks cannot be deleted")
	ErrDuplicateTask   = Err("task id already exists")
)
