package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CanonicalBytes returns the compact JSON form of m with object keys sorted.
// Two documents with equal content always produce equal bytes.
func CanonicalBytes(m *CognitiveMap) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("canonical encoding: %w", err)
	}
	// Round-tripping through a generic value sorts every object's keys.
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canonical encoding: %w", err)
	}
	return json.Marshal(generic)
}

// Hash returns the hex SHA-256 of the canonical form, prefixed "sha256:".
func Hash(m *CognitiveMap) (string, error) {
	data, err := CanonicalBytes(m)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// Clone returns a deep copy of m that shares no mutable state with it.
func Clone(m *CognitiveMap) *CognitiveMap {
	if m == nil {
		return nil
	}
	out := &CognitiveMap{
		Version: m.Version,
		Nodes:   make([]Node, len(m.Nodes)),
		Edges:   make([]Edge, len(m.Edges)),
		FCM: FCMConfig{
			StateRange: m.FCM.StateRange,
			Activation: m.FCM.Activation,
			Scenarios:  make([]Scenario, len(m.FCM.Scenarios)),
		},
	}
	copy(out.Nodes, m.Nodes)
	for i, e := range m.Edges {
		out.Edges[i] = e
		out.Edges[i].Confidence = cloneFloat(e.Confidence)
	}
	for i, s := range m.FCM.Scenarios {
		out.FCM.Scenarios[i] = CloneScenario(s)
	}
	return out
}

// CloneScenario returns a deep copy of s.
func CloneScenario(s Scenario) Scenario {
	out := s
	out.Params = CloneParams(s.Params)
	if s.Result != nil {
		r := CloneResult(*s.Result)
		out.Result = &r
	}
	return out
}

// CloneParams returns a deep copy of p.
func CloneParams(p ScenarioParams) ScenarioParams {
	out := p
	out.ConvergenceThreshold = cloneFloat(p.ConvergenceThreshold)
	out.InitialStates = cloneStates(p.InitialStates)
	return out
}

// CloneResult returns a deep copy of r.
func CloneResult(r ScenarioResult) ScenarioResult {
	out := r
	out.FinalStates = cloneStates(r.FinalStates)
	if r.History != nil {
		out.History = make([]map[string]float64, len(r.History))
		for i, h := range r.History {
			out.History[i] = cloneStates(h)
		}
	}
	return out
}

func cloneStates(s map[string]float64) map[string]float64 {
	if s == nil {
		return nil
	}
	out := make(map[string]float64, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// Float returns a pointer to v. Handy for optional fields.
func Float(v float64) *float64 { return &v }
