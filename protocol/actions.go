package protocol

import (
	"encoding/json"
	"sort"
)

// Action is one discrete thing a player can declare on a frame.
type Action string

const (
	ActionUp         Action = "UP"
	ActionDown       Action = "DOWN"
	ActionBack       Action = "BACK"
	ActionForward    Action = "FORWARD"
	ActionLightPunch Action = "LIGHT_PUNCH"
	ActionHeavyPunch Action = "HEAVY_PUNCH"
	ActionLightKick  Action = "LIGHT_KICK"
	ActionHeavyKick  Action = "HEAVY_KICK"
	ActionBlock      Action = "BLOCK"
)

// ActionSet is the set of actions a player declared for one frame.
// Pressing two buttons simultaneously is a set, not a sequence: order is
// irrelevant and duplicates collapse. The empty set is a valid value and
// means "no input".
type ActionSet map[Action]struct{}

// NewActionSet builds a set from the given actions.
func NewActionSet(actions ...Action) ActionSet {
	s := make(ActionSet, len(actions))
	for _, a := range actions {
		s[a] = struct{}{}
	}
	return s
}

func (s ActionSet) Has(a Action) bool {
	_, ok := s[a]
	return ok
}

func (s ActionSet) Empty() bool {
	return len(s) == 0
}

// Equal reports set equality, ignoring any ordering concern.
func (s ActionSet) Equal(o ActionSet) bool {
	if len(s) != len(o) {
		return false
	}
	for a := range s {
		if _, ok := o[a]; !ok {
			return false
		}
	}
	return true
}

// Clone returns an independent copy. Recorded frames are immutable, so
// buffers store clones rather than aliasing caller maps.
func (s ActionSet) Clone() ActionSet {
	c := make(ActionSet, len(s))
	for a := range s {
		c[a] = struct{}{}
	}
	return c
}

// MarshalJSON encodes the set as a sorted array for a stable wire form.
func (s ActionSet) MarshalJSON() ([]byte, error) {
	list := make([]string, 0, len(s))
	for a := range s {
		list = append(list, string(a))
	}
	sort.Strings(list)
	return json.Marshal(list)
}

func (s *ActionSet) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	set := make(ActionSet, len(list))
	for _, a := range list {
		set[Action(a)] = struct{}{}
	}
	*s = set
	return nil
}
