package scenario

import (
	"encoding/hex"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mash-protocol/mle-go/pkg/mle"
	"github.com/mash-protocol/mle-go/pkg/security"
)

// Parse parses a scenario from YAML bytes.
func Parse(data []byte) (*Scenario, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{
			Message: "failed to parse YAML",
			Cause:   err,
		}
	}
	if len(doc.Content) == 0 {
		return nil, &LoadError{Message: "empty scenario"}
	}

	var sc Scenario
	if err := doc.Decode(&sc); err != nil {
		return nil, &LoadError{
			Message: "failed to decode scenario",
			Cause:   err,
		}
	}
	if err := sc.validate(doc.Content[0]); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Load loads a scenario from a file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{
			File:    path,
			Message: "failed to read file",
			Cause:   err,
		}
	}

	sc, err := Parse(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.File = path
			return nil, le
		}
		return nil, &LoadError{
			File:    path,
			Message: err.Error(),
		}
	}
	return sc, nil
}

// LoadDirectory loads all scenarios from a directory.
// Only files with .yaml or .yml extensions are loaded.
func LoadDirectory(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{
			File:    dir,
			Message: "failed to read directory",
			Cause:   err,
		}
	}

	var out []*Scenario
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		sc, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

func (sc *Scenario) validate(root *yaml.Node) error {
	if sc.Name == "" {
		return &LoadError{Line: root.Line, Message: "scenario name is required"}
	}
	if sc.Node.ExtAddress.IsZero() {
		return &LoadError{Line: lineOf(root, "node"), Message: "node ext_address is required"}
	}
	if _, err := parseDevice(sc.Node.Device); err != nil {
		return &LoadError{Line: lineOf(root, "node"), Message: err.Error()}
	}
	if _, err := ParseAttachMode(sc.Node.AttachMode); err != nil {
		return &LoadError{Line: lineOf(root, "node"), Message: err.Error()}
	}
	if sc.Node.NetworkKey != "" {
		if _, err := security.ParseNetworkKey(sc.Node.NetworkKey); err != nil {
			return &LoadError{Line: lineOf(root, "node"), Message: "invalid network_key", Cause: err}
		}
	}
	for _, a := range sc.Node.Addresses {
		if _, err := netip.ParseAddr(a); err != nil {
			return &LoadError{Line: lineOf(root, "node"), Message: "invalid address " + a, Cause: err}
		}
	}

	seen := make(map[mle.ExtAddress]bool)
	for i, p := range sc.Parents {
		line := itemLine(root, "parents", i)
		switch {
		case p.ExtAddress.IsZero():
			return &LoadError{Line: line, Message: fmt.Sprintf("parent %d: ext_address is required", i)}
		case p.ExtAddress == sc.Node.ExtAddress:
			return &LoadError{Line: line, Message: fmt.Sprintf("parent %d: ext_address is the node's", i)}
		case seen[p.ExtAddress]:
			return &LoadError{Line: line, Message: fmt.Sprintf("parent %d: duplicate ext_address %s", i, p.ExtAddress)}
		}
		seen[p.ExtAddress] = true
		if _, err := hex.DecodeString(p.NetworkData); err != nil {
			return &LoadError{Line: line, Message: fmt.Sprintf("parent %d: invalid network_data", i), Cause: err}
		}
	}

	if sc.Expect != nil && sc.Expect.State != "" && !knownState(sc.Expect.State) {
		return &LoadError{Line: lineOf(root, "expect"), Message: "unknown state " + sc.Expect.State}
	}
	return nil
}

// lineOf returns the line of the value of key in a mapping node.
func lineOf(m *yaml.Node, key string) int {
	if v := valueOf(m, key); v != nil {
		return v.Line
	}
	return 0
}

// itemLine returns the line of item i of the sequence under key.
func itemLine(m *yaml.Node, key string, i int) int {
	v := valueOf(m, key)
	if v == nil || v.Kind != yaml.SequenceNode || i >= len(v.Content) {
		return 0
	}
	return v.Content[i].Line
}

func valueOf(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}
