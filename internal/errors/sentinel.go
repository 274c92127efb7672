package errors

import stderrors "errors"

// Sentinels matched with errors.Is through StructuredError.Unwrap.
var (
	// ErrDoubleFree is the cause of the panic raised when a node is freed twice.
	ErrDoubleFree = stderrors.New("node freed twice")
	// ErrUseAfterFree is the cause of the panic raised when a freed node is handed out as live.
	ErrUseAfterFree = stderrors.New("node reused while live")
)
