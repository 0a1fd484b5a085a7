package protocol

import (
	"encoding/json"
	"testing"
)

func Test_ActionSetEquality(t *testing.T) {
	a := NewActionSet(ActionLightPunch, ActionForward)
	b := NewActionSet(ActionForward, ActionLightPunch)
	if !a.Equal(b) {
		t.Error("insertion order must not matter")
	}
	if a.Equal(NewActionSet(ActionForward)) {
		t.Error("different cardinality compared equal")
	}
	if !NewActionSet().Equal(NewActionSet()) {
		t.Error("empty sets must be equal")
	}
}

func Test_ActionSetJSON(t *testing.T) {
	in := NewActionSet(ActionHeavyKick, ActionBlock, ActionDown)
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}

	var out ActionSet
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if !in.Equal(out) {
		t.Errorf("want %v, got %v", in, out)
	}

	// duplicates in the payload collapse into the set
	var dup ActionSet
	if err := json.Unmarshal([]byte(`["BLOCK","BLOCK","UP"]`), &dup); err != nil {
		t.Fatal(err)
	}
	if !dup.Equal(NewActionSet(ActionBlock, ActionUp)) {
		t.Errorf("duplicates not collapsed: %v", dup)
	}
}

func Test_ActionSetClone(t *testing.T) {
	orig := NewActionSet(ActionUp)
	clone := orig.Clone()
	clone[ActionDown] = struct{}{}
	if orig.Has(ActionDown) {
		t.Error("mutating the clone leaked into the original")
	}
}
