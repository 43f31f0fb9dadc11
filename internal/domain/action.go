package domain

import (
	"encoding/json"
)

// ActionSpec is one proposed operation inside an action set. The id is unique
// by convention only; duplicates within a set resolve to the first match.
type ActionSpec struct {
	ID     string            `json:"id"`
	API    string            `json:"api"`
	Params map[string]string `json:"params"`
}

// ActionSet is the machine-actionable part of one assistant reply.
type ActionSet struct {
	Actions []ActionSpec `json:"actions"`
}

// DecodeActionSet parses a staged actions document. Unknown fields are
// ignored so the model may embed extra metadata without breaking lookup.
func DecodeActionSet(doc string) (*ActionSet, error) {
	var set ActionSet
	if err := json.Unmarshal([]byte(doc), &set); err != nil {
		return nil, err
	}
	return &set, nil
}

// Find returns the first action whose id matches, or nil.
func (s *ActionSet) Find(id string) *ActionSpec {
	for i := range s.Actions {
		if s.Actions[i].ID == id {
			return &s.Actions[i]
		}
	}
	return nil
}
