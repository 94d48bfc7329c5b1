package bootstrap

// State is the attach state of an interface.
type State uint8

const (
	// StateIdle is the state of a fresh or restored interface.
	StateIdle State = iota
	StateNetworkDiscover
	StateMLEScan
	StateAttachReady
	StateChildIDRequest
	StateBootstrapDone
	StateReattach
	StateReattachRetry
	StateConnected
	StateConnectedRouter
	StateAttachAny
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateNetworkDiscover:
		return "NETWORK_DISCOVER"
	case StateMLEScan:
		return "MLE_SCAN"
	case StateAttachReady:
		return "ATTACH_READY"
	case StateChildIDRequest:
		return "CHILD_ID_REQ"
	case StateBootstrapDone:
		return "BOOTSTRAP_DONE"
	case StateReattach:
		return "REATTACH"
	case StateReattachRetry:
		return "REATTACH_RETRY"
	case StateConnected:
		return "CONNECTED"
	case StateConnectedRouter:
		return "CONNECTED_ROUTER"
	case StateAttachAny:
		return "ATTACH_ANY"
	default:
		return "UNKNOWN"
	}
}

func (s State) attached() bool {
	return s == StateConnected || s == StateConnectedRouter || s == StateBootstrapDone
}

// AttachMode selects which parents a scan accepts.
type AttachMode uint8

const (
	// AttachDiscover accepts any partition.
	AttachDiscover AttachMode = iota

	// AttachReattach accepts only the remembered partition with a newer
	// router id sequence.
	AttachReattach

	// AttachReattachRetry is AttachReattach with REEDs included from the
	// first request.
	AttachReattachRetry

	// AttachAny accepts only partitions other than the remembered one.
	AttachAny
)

// String returns the mode name.
func (m AttachMode) String() string {
	return m.State().String()
}

// State returns the attach state named after the mode.
func (m AttachMode) State() State {
	switch m {
	case AttachReattach:
		return StateReattach
	case AttachReattachRetry:
		return StateReattachRetry
	case AttachAny:
		return StateAttachAny
	default:
		return StateNetworkDiscover
	}
}

// Role is the device role derived from mode and attach state.
type Role uint8

const (
	RoleDetached Role = iota
	RoleSleepyEndDevice
	RoleMinimalEndDevice
	RoleFullEndDevice
	RoleREED
	RoleRouter
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleDetached:
		return "DETACHED"
	case RoleSleepyEndDevice:
		return "SED"
	case RoleMinimalEndDevice:
		return "MED"
	case RoleFullEndDevice:
		return "FED"
	case RoleREED:
		return "REED"
	case RoleRouter:
		return "ROUTER"
	default:
		return "UNKNOWN"
	}
}

// ConnectionError is the kind of fault reported to the supervisor.
type ConnectionError uint8

const (
	// ErrorNetworkAttachFail means parent discovery or the Child-ID
	// exchange failed.
	ErrorNetworkAttachFail ConnectionError = iota + 1

	// ErrorPartitionMerge means a preferred partition was heard.
	ErrorPartitionMerge

	// ErrorParentLost means the parent rejected or stopped answering the
	// node.
	ErrorParentLost

	// ErrorShortAddressChanged means the parent advertised a new short
	// address.
	ErrorShortAddressChanged
)

// String returns the error kind name.
func (c ConnectionError) String() string {
	switch c {
	case ErrorNetworkAttachFail:
		return "NETWORK_ATTACH_FAIL"
	case ErrorPartitionMerge:
		return "PARTITION_MERGE"
	case ErrorParentLost:
		return "PARENT_LOST"
	case ErrorShortAddressChanged:
		return "SHORT_ADDRESS_CHANGED"
	default:
		return "UNKNOWN"
	}
}

// receiveMode selects which handler consumes received messages.
type receiveMode uint8

const (
	receiveGeneral receiveMode = iota
	receiveChildID
	receiveSynch
)
