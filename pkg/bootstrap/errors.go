package bootstrap

import "errors"

var (
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrUnknownInterface  = errors.New("unknown interface")
	ErrInterfaceExists   = errors.New("interface already registered")
	ErrMissingDependency = errors.New("missing dependency")
	ErrNoCandidate       = errors.New("no parent candidate")
	ErrNoParent          = errors.New("no parent")
	ErrNotParent         = errors.New("address is not the parent")
	ErrNotRouterCapable  = errors.New("interface is not router capable")
	ErrInvalidRouterID   = errors.New("invalid router id")

	// Synchronization response validation.
	ErrMissingTLV       = errors.New("mandatory TLV missing")
	ErrRejectedByParent = errors.New("rejected by parent")
	ErrSecurityMode     = errors.New("unexpected key id mode")
)
