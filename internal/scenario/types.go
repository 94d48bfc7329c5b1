// Package scenario loads simulator scenarios from YAML and runs them
// against a bootstrap engine on the in-memory network.
package scenario

import (
	"strconv"
	"time"

	"github.com/mash-protocol/mle-go/pkg/mle"
)

// Scenario is one simulated attach.
type Scenario struct {
	// Name identifies the scenario.
	Name string `yaml:"name"`

	// Description explains what the scenario exercises.
	Description string `yaml:"description"`

	// Node configures the node under test.
	Node Node `yaml:"node"`

	// Parents are the routers in radio range of the node.
	Parents []ParentSpec `yaml:"parents"`

	// Duration is the simulated time to run (e.g., "10s").
	Duration time.Duration `yaml:"duration,omitempty"`

	// Expect is checked against the result of the run.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Node configures the node under test.
type Node struct {
	// ExtAddress is the node's extended address.
	ExtAddress mle.ExtAddress `yaml:"ext_address"`

	// Device is one of reed (default), fed, med or sed.
	Device string `yaml:"device,omitempty"`

	// AttachMode is one of discover (default), reattach, reattach_retry
	// or any.
	AttachMode string `yaml:"attach_mode,omitempty"`

	// CCM enables commercial commissioning mode.
	CCM bool `yaml:"ccm,omitempty"`

	// ChildTimeout overrides the requested child timeout.
	ChildTimeout time.Duration `yaml:"child_timeout,omitempty"`

	// Addresses are registered by minimal devices.
	Addresses []string `yaml:"addresses,omitempty"`

	// NetworkKey is the hex encoded network key. A fixed test key is
	// used when empty.
	NetworkKey string `yaml:"network_key,omitempty"`
}

// ParentSpec describes a scripted router.
type ParentSpec struct {
	ExtAddress mle.ExtAddress `yaml:"ext_address"`

	// ShortAddress is the router's RLOC16.
	ShortAddress uint16 `yaml:"short_address"`

	PartitionID       uint32 `yaml:"partition_id"`
	Weighting         uint8  `yaml:"weighting"`
	DataVersion       uint8  `yaml:"data_version,omitempty"`
	StableDataVersion uint8  `yaml:"stable_data_version,omitempty"`
	LeaderRouterID    uint8  `yaml:"leader_router_id,omitempty"`

	ParentPriority int8  `yaml:"parent_priority,omitempty"`
	LinkQuality3   uint8 `yaml:"link_quality_3,omitempty"`
	LinkQuality2   uint8 `yaml:"link_quality_2,omitempty"`
	LinkQuality1   uint8 `yaml:"link_quality_1,omitempty"`
	LeaderCost     uint8 `yaml:"leader_cost,omitempty"`
	IDSequence     uint8 `yaml:"id_sequence,omitempty"`
	ActiveRouters  uint8 `yaml:"active_routers,omitempty"`

	// Version defaults to Thread 1.3.
	Version uint16 `yaml:"version,omitempty"`

	// DBM is the signal strength at the node; LinkMargin is the margin
	// the router reports for the node.
	DBM        int8  `yaml:"dbm"`
	LinkMargin uint8 `yaml:"link_margin"`

	KeySequence uint32 `yaml:"key_sequence,omitempty"`

	// NetworkData is hex encoded.
	NetworkData string `yaml:"network_data,omitempty"`

	// ChildAddress is assigned to the node; zero assigns short_address|1.
	ChildAddress uint16 `yaml:"child_address,omitempty"`

	// JoinAfter delays the router's appearance.
	JoinAfter time.Duration `yaml:"join_after,omitempty"`

	IgnoreParentRequest bool `yaml:"ignore_parent_request,omitempty"`
	IgnoreChildID       bool `yaml:"ignore_child_id,omitempty"`
	IgnoreChildUpdate   bool `yaml:"ignore_child_update,omitempty"`
	IgnoreDataRequest   bool `yaml:"ignore_data_request,omitempty"`
	RejectChildUpdate   bool `yaml:"reject_child_update,omitempty"`
}

// Expect lists the outcomes checked after a run. Empty fields are not
// checked.
type Expect struct {
	// State is the attach state name (e.g., "CONNECTED").
	State string `yaml:"state,omitempty"`

	// Role is the device role name (e.g., "REED").
	Role string `yaml:"role,omitempty"`

	// Parent is the extended address of the selected parent.
	Parent *mle.ExtAddress `yaml:"parent,omitempty"`

	ShortAddress *uint16 `yaml:"short_address,omitempty"`
	PartitionID  *uint32 `yaml:"partition_id,omitempty"`

	// Restarts is the number of supervisor restarts.
	Restarts *int `yaml:"restarts,omitempty"`
}

// LoadError provides details about a scenario loading error.
type LoadError struct {
	// File is the path to the file that failed to load.
	File string

	// Line is the line number where the error occurred (0 if unknown).
	Line int

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return e.File + ":" + strconv.Itoa(e.Line) + ": " + e.Message
	}
	return e.File + ": " + e.Message
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}
