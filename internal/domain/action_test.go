package domain

import "testing"

func TestDecodeActionSet(t *testing.T) {
	doc := `{
		"note": "extra metadata is fine",
		"actions": [
			{"id": "a1", "api": "list_servers", "params": {}},
			{"id": "a2", "api": "execute", "params": {"server": "web1", "command": "uptime"}}
		]
	}`

	set, err := DecodeActionSet(doc)
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(set.Actions))
	}
	if set.Actions[1].Params["command"] != "uptime" {
		t.Errorf("unexpected params: %+v", set.Actions[1].Params)
	}
}

func TestDecodeActionSet_Invalid(t *testing.T) {
	if _, err := DecodeActionSet(`{"actions": "not a list"}`); err == nil {
		t.Error("expected a decode error")
	}
}

func TestActionSet_Find(t *testing.T) {
	set := &ActionSet{Actions: []ActionSpec{
		{ID: "dup", API: "first"},
		{ID: "dup", API: "second"},
		{ID: "other", API: "third"},
	}}

	if found := set.Find("dup"); found == nil || found.API != "first" {
		t.Errorf("expected the first matching action, got %+v", found)
	}
	if found := set.Find("missing"); found != nil {
		t.Errorf("expected nil for an unknown id, got %+v", found)
	}
}
