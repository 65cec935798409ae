package host

import "errors"

var (
	ErrUnknownProgram       = errors.New("unknown program")
	ErrMissingAccount       = errors.New("account not provided to invocation")
	ErrMissingSignature     = errors.New("missing required signature")
	ErrPrivilegeEscalation  = errors.New("writable privilege escalated")
	ErrReadonlyWrite        = errors.New("readonly account modified")
	ErrExternalModification = errors.New("account modified by non-owner program")
	ErrUnbalanced           = errors.New("sum of lamports changed")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrAccountInUse         = errors.New("account already in use")
	ErrInvalidInstruction   = errors.New("invalid instruction data")
	ErrCallDepth            = errors.New("invocation depth exceeded")
)
