// Package models defines the cognitive map document and its scenario types.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CurrentVersion is the document format version written by this build.
const CurrentVersion = 1

// DefaultNodeColor is the UI color assigned to nodes that carry none.
const DefaultNodeColor = "#64748b"

// ActivationType names the squashing function applied by the scenario engine.
type ActivationType string

const (
	ActivationTanh     ActivationType = "tanh"     // native range (-1, 1)
	ActivationSigmoid  ActivationType = "sigmoid"  // native range (0, 1)
	ActivationIdentity ActivationType = "identity" // unbounded, clamped to the state range
)

// Valid reports whether t is a known activation type.
func (t ActivationType) Valid() bool {
	switch t {
	case ActivationTanh, ActivationSigmoid, ActivationIdentity:
		return true
	}
	return false
}

// PreferredState is an intervention hint on a node. The engine does not enforce it.
type PreferredState string

const (
	PreferIncrease PreferredState = "increase"
	PreferDecrease PreferredState = "decrease"
)

// NodeUI holds layout hints. The core never interprets them.
type NodeUI struct {
	X     float64 `json:"x" yaml:"x"`
	Y     float64 `json:"y" yaml:"y"`
	Color string  `json:"color" yaml:"color"`
}

// Node is a concept in the cognitive map.
type Node struct {
	ID             string         `json:"id" yaml:"id"`
	Label          string         `json:"label" yaml:"label"`
	UI             NodeUI         `json:"ui" yaml:"ui"`
	PreferredState PreferredState `json:"preferred_state,omitempty" yaml:"preferred_state,omitempty"`
}

// Edge is a causal influence from Source to Target.
type Edge struct {
	Source string  `json:"source" yaml:"source"`
	Target string  `json:"target" yaml:"target"`
	Weight float64 `json:"weight" yaml:"weight"` // [-1, 1]

	// Confidence scales Weight when a scenario sets use_confidence. [0, 1]
	Confidence *float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

// EffectiveWeight returns the weight an edge contributes to its target.
func (e Edge) EffectiveWeight(useConfidence bool) float64 {
	if useConfidence && e.Confidence != nil {
		return e.Weight * *e.Confidence
	}
	return e.Weight
}

// Activation selects the document's default squashing function.
type Activation struct {
	Type   ActivationType `json:"type" yaml:"type"`
	Lambda float64        `json:"lambda" yaml:"lambda"`
}

// StateRange is the closed interval node states are mapped into.
type StateRange [2]float64

// Min returns the lower bound.
func (r StateRange) Min() float64 { return r[0] }

// Max returns the upper bound.
func (r StateRange) Max() float64 { return r[1] }

// Contains reports whether v lies within the range.
func (r StateRange) Contains(v float64) bool { return v >= r[0] && v <= r[1] }

// FCMConfig is the simulation configuration embedded in a document.
type FCMConfig struct {
	StateRange StateRange `json:"state_range" yaml:"state_range"`
	Activation Activation `json:"activation" yaml:"activation"`
	Scenarios  []Scenario `json:"scenarios" yaml:"scenarios"`
}

// CognitiveMap is the whole document: graph plus simulation configuration.
// It is always replaced as a unit; there is no partial patch.
type CognitiveMap struct {
	Version int       `json:"version" yaml:"version"`
	Nodes   []Node    `json:"nodes" yaml:"nodes"`
	Edges   []Edge    `json:"edges" yaml:"edges"`
	FCM     FCMConfig `json:"fcm" yaml:"fcm"`
}

// NewCognitiveMap returns an empty document with default configuration.
func NewCognitiveMap() *CognitiveMap {
	return &CognitiveMap{
		Version: CurrentVersion,
		Nodes:   []Node{},
		Edges:   []Edge{},
		FCM: FCMConfig{
			StateRange: StateRange{-1, 1},
			Activation: Activation{Type: ActivationTanh, Lambda: 1.0},
			Scenarios:  []Scenario{},
		},
	}
}

// NodeIndex maps node ids to their position in document order.
func (m *CognitiveMap) NodeIndex() map[string]int {
	idx := make(map[string]int, len(m.Nodes))
	for i, n := range m.Nodes {
		idx[n.ID] = i
	}
	return idx
}

// HasNode reports whether a node with the given id exists.
func (m *CognitiveMap) HasNode(id string) bool {
	for _, n := range m.Nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

// FindEdge returns the index of the source->target edge, or -1.
func (m *CognitiveMap) FindEdge(source, target string) int {
	for i, e := range m.Edges {
		if e.Source == source && e.Target == target {
			return i
		}
	}
	return -1
}

// FindScenario returns the index of the scenario with the given id, or -1.
func (m *CognitiveMap) FindScenario(id string) int {
	for i, s := range m.FCM.Scenarios {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Normalize fills defaults the JSON form may omit and replaces nil slices
// so that equal documents always serialize identically.
func (m *CognitiveMap) Normalize() {
	if m.Version == 0 {
		m.Version = CurrentVersion
	}
	if m.Nodes == nil {
		m.Nodes = []Node{}
	}
	if m.Edges == nil {
		m.Edges = []Edge{}
	}
	if m.FCM.Scenarios == nil {
		m.FCM.Scenarios = []Scenario{}
	}
	for i := range m.Nodes {
		if m.Nodes[i].UI.Color == "" {
			m.Nodes[i].UI.Color = DefaultNodeColor
		}
	}
	for i := range m.FCM.Scenarios {
		if m.FCM.Scenarios[i].Params.InitialStates == nil {
			m.FCM.Scenarios[i].Params.InitialStates = map[string]float64{}
		}
	}
}

// DecodeCognitiveMap parses a JSON document. Missing fields take their
// defaults; unknown fields are rejected as a ValidationError.
func DecodeCognitiveMap(data []byte) (*CognitiveMap, error) {
	m := NewCognitiveMap()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(m); err != nil {
		return nil, &ValidationError{Field: "document", Issue: "malformed", Detail: err.Error()}
	}
	if dec.More() {
		return nil, &ValidationError{Field: "document", Issue: "malformed", Detail: "trailing data after document"}
	}
	m.Normalize()
	return m, nil
}

// EncodeCognitiveMap renders the indented JSON file form of a document.
func EncodeCognitiveMap(m *CognitiveMap) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding cognitive map: %w", err)
	}
	return append(data, '\n'), nil
}
