// Copyright 2025 Certen Protocol

package server

import "errors"

var (
	// ErrUnroutableEnvelope names the case of an envelope whose addrKey names
	// no known entity and the fallback cannot resolve one either. Apply
	// drops such envelopes and does not return this error.
	ErrUnroutableEnvelope = errors.New("server: envelope does not route to any hosted replica")
	// ErrDuplicateImport names the case of an IMPORT targeting an addrKey
	// that already has at least one hosted replica. Apply skips such imports
	// and does not return this error.
	ErrDuplicateImport = errors.New("server: entity already imported")
	// ErrMalformedAddrKey names the case of a command whose addrKey cannot
	// be parsed back into a jurisdiction/entityId pair. Apply drops such
	// envelopes and does not return this error.
	ErrMalformedAddrKey = errors.New("server: malformed addrKey")
)
