package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mash-protocol/mle-go/pkg/childstore"
	"github.com/mash-protocol/mle-go/pkg/mle"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// NodeState is the persisted state of all interfaces.
type NodeState struct {
	Version    int              `json:"version"`
	SavedAt    time.Time        `json:"saved_at"`
	Interfaces []InterfaceState `json:"interfaces,omitempty"`
}

// Interface returns the state saved for id.
func (s *NodeState) Interface(id mle.InterfaceID) (*InterfaceState, bool) {
	for i := range s.Interfaces {
		if s.Interfaces[i].Interface == id {
			return &s.Interfaces[i], true
		}
	}
	return nil, false
}

// Put replaces or appends the state of one interface.
func (s *NodeState) Put(is InterfaceState) {
	for i := range s.Interfaces {
		if s.Interfaces[i].Interface == is.Interface {
			s.Interfaces[i] = is
			return
		}
	}
	s.Interfaces = append(s.Interfaces, is)
}

// InterfaceState is the persisted state of one interface.
type InterfaceState struct {
	Interface mle.InterfaceID `json:"interface"`

	ShortAddress     uint16 `json:"short_address"`
	RouterIDSequence uint8  `json:"router_id_sequence,omitempty"`
	KeySequence      uint32 `json:"key_sequence,omitempty"`

	Leader   *mle.LeaderData     `json:"leader,omitempty"`
	Parent   *ParentState        `json:"parent,omitempty"`
	Children []childstore.Record `json:"children,omitempty"`
}

// ParentState is the persisted parent of an end device.
type ParentState struct {
	Ext              mle.ExtAddress `json:"ext"`
	ShortAddress     uint16         `json:"short_address"`
	PathCost         uint8          `json:"path_cost"`
	Version          uint16         `json:"version"`
	LinkFrameCounter uint32         `json:"link_frame_counter,omitempty"`
	MLEFrameCounter  uint32         `json:"mle_frame_counter,omitempty"`
}

// NodeStateStore persists NodeState to a JSON file.
type NodeStateStore struct {
	mu   sync.Mutex
	path string
}

// NewNodeStateStore creates a store backed by path.
func NewNodeStateStore(path string) *NodeStateStore {
	return &NodeStateStore{path: path}
}

// Path returns the backing file path.
func (s *NodeStateStore) Path() string {
	return s.path
}

// Save writes state to disk, creating the parent directory if needed.
func (s *NodeStateStore) Save(state *NodeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	state.Version = StateVersion
	if state.SavedAt.IsZero() {
		state.SavedAt = time.Now()
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	// Write to a temp file first so a reset during Save keeps the old state.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the state from disk.
// Returns nil, nil if the file doesn't exist.
func (s *NodeStateStore) Load() (*NodeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &NodeState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, err
	}
	if state.Version > StateVersion {
		return nil, fmt.Errorf("state file version %d is newer than supported %d", state.Version, StateVersion)
	}
	return state, nil
}

// Clear removes the state file.
func (s *NodeStateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
