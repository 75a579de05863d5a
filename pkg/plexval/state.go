package plexval

// State names an external-world quantity: a name paired with an ordered
// parameter sequence. Two states are equal iff both name and parameters
// match (spec §3). The distinguished TimeStateName denotes the executive's
// clock.
type State struct {
	Name   string
	Params []Value
}

// TimeStateName is the distinguished state representing the current clock.
const TimeStateName = "time"

// TimeState is the zero-parameter state read for current_time().
var TimeState = State{Name: TimeStateName}

// NewState builds a State from a name and parameters.
func NewState(name string, params ...Value) State {
	return State{Name: name, Params: params}
}

// Equal reports whether s and o name the same external-world quantity.
func (s State) Equal(o State) bool {
	if s.Name != o.Name || len(s.Params) != len(o.Params) {
		return false
	}
	for i := range s.Params {
		if !s.Params[i].Equal(o.Params[i]) {
			return false
		}
	}
	return true
}

// Key renders a State as a stable map key for lookup tables. It is not
// meant to be human-parsed, only distinct per distinct State.
func (s State) Key() string {
	key := s.Name
	for _, p := range s.Params {
		key += "\x1f" + p.String() + "\x1e" + p.Type().String()
	}
	return key
}

func (s State) String() string {
	out := s.Name + "("
	for i, p := range s.Params {
		if i > 0 {
			out += ", "
		}
		out += p.String()
	}
	return out + ")"
}
