package mdns

import mdnserrors "github.com/linklocal/mdns/internal/errors"

// NetworkError, ValidationError, WireFormatError and NameConflictError are
// the error taxonomy surfaced to callers. They are aliases of the internal
// types so that errors.As works against either import path.
type (
	NetworkError      = mdnserrors.NetworkError
	ValidationError   = mdnserrors.ValidationError
	WireFormatError   = mdnserrors.WireFormatError
	NameConflictError = mdnserrors.NameConflictError
)
