package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type catalogDoc struct {
	CurrentGroup string              `json:"current_group,omitempty"`
	Groups       map[string]groupDoc `json:"groups"`
}

type groupDoc struct {
	Topics map[string]int64 `json:"topics"`
}

// EncodeCatalog renders the state as the persisted JSON document.
func EncodeCatalog(s CatalogState) ([]byte, error) {
	doc := catalogDoc{
		CurrentGroup: s.CurrentGroup,
		Groups:       make(map[string]groupDoc, len(s.Groups)),
	}
	for id, g := range s.Groups {
		topics := make(map[string]int64, len(g.Topics))
		for name, thread := range g.Topics {
			topics[name] = thread
		}
		doc.Groups[id] = groupDoc{Topics: topics}
	}
	return json.MarshalIndent(doc, "", "    ")
}

// DecodeCatalog parses and validates a persisted document. Empty input yields
// an empty state. The single-group layout written by older deployments
// ({"group_id": N, "topics": {...}}) is upgraded on the fly.
func DecodeCatalog(data []byte) (CatalogState, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return NewCatalogState(), nil
	}

	var top map[string]json.RawMessage
	if err := decodeNumbers(data, &top); err != nil {
		return CatalogState{}, NewValidationError("catalog", fmt.Sprintf("invalid document: %v", err))
	}

	var (
		state CatalogState
		err   error
	)
	if _, ok := top["group_id"]; ok {
		state, err = decodeLegacy(top)
	} else {
		state, err = decodeCurrent(data)
	}
	if err != nil {
		return CatalogState{}, err
	}
	if err := state.Validate(); err != nil {
		return CatalogState{}, err
	}
	return state, nil
}

func decodeCurrent(data []byte) (CatalogState, error) {
	var doc catalogDoc
	if err := decodeNumbers(data, &doc); err != nil {
		return CatalogState{}, NewValidationError("catalog", fmt.Sprintf("invalid document: %v", err))
	}
	state := NewCatalogState()
	state.CurrentGroup = doc.CurrentGroup
	for id, g := range doc.Groups {
		topics := g.Topics
		if topics == nil {
			topics = make(map[string]int64)
		}
		state.Groups[id] = &Group{ID: id, Topics: topics}
	}
	return state, nil
}

func decodeLegacy(top map[string]json.RawMessage) (CatalogState, error) {
	state := NewCatalogState()

	var groupID json.Number
	raw := top["group_id"]
	if !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		if err := decodeNumbers(raw, &groupID); err != nil {
			return CatalogState{}, NewValidationError("group_id", fmt.Sprintf("invalid legacy group id: %v", err))
		}
	}

	var rawTopicMap map[string]int64
	if rawTopics, ok := top["topics"]; ok {
		if err := decodeNumbers(rawTopics, &rawTopicMap); err != nil {
			return CatalogState{}, NewValidationError("topics", fmt.Sprintf("invalid legacy topics: %v", err))
		}
	}
	// Older deployments stored forum titles verbatim.
	topics := make(map[string]int64, len(rawTopicMap))
	for name, thread := range rawTopicMap {
		topics[NormalizeTopicName(name)] = thread
	}

	if groupID == "" {
		if len(topics) > 0 {
			return CatalogState{}, NewValidationError("group_id", "legacy topics without a group id")
		}
		return state, nil
	}
	id := groupID.String()
	state.Groups[id] = &Group{ID: id, Topics: topics}
	state.CurrentGroup = id
	return state, nil
}

func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
