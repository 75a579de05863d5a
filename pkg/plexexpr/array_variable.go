package plexexpr

import "github.com/plexil-group/plexil-sub002/pkg/plexval"

// ArrayVariable is a Variable whose value is an array with a fixed
// maximum length and element type (spec §3). Element writes are bounds-
// and type-checked. Writes copy-on-write against the frozen initial array
// so that Reset always recovers the exact value the plan declared,
// regardless of how many element writes happened since (grounded on
// original_source/src/exec/Array.cc's reset-from-initial behavior;
// spec.md is silent on the exact mechanism — see SPEC_FULL.md §3).
type ArrayVariable struct {
	*Variable
	maxLen      int
	elementType plexval.Type
	owned       bool // true once a write has cloned the backing storage
}

// NewArrayVariable constructs an ArrayVariable. initial must already be an
// array Value of elementType with length <= maxLen (NewValidationError
// otherwise). initial is stored as given, not copied; element writes never
// modify it in place, since each write builds a new backing array.
func NewArrayVariable(name string, elementType plexval.Type, maxLen int, initial plexval.Value, isConst bool) (*ArrayVariable, error) {
	if !initial.Type().IsArray() || initial.ElementType() != elementType {
		return nil, plexval.NewValidationError("plexexpr.NewArrayVariable", "initial value type does not match declared element type for "+name)
	}
	if initial.Len() > maxLen {
		return nil, plexval.NewValidationError("plexexpr.NewArrayVariable", "initial array longer than declared max length for "+name)
	}
	av := &ArrayVariable{
		Variable:    NewVariable(name, initial.Type(), initial, isConst),
		maxLen:      maxLen,
		elementType: elementType,
	}
	av.Variable.BindSelf(av)
	return av, nil
}

func (av *ArrayVariable) MaxLen() int                    { return av.maxLen }
func (av *ArrayVariable) ElementType() plexval.Type      { return av.elementType }
func (av *ArrayVariable) Len() int                       { return av.Base.RawValue().Len() }
func (av *ArrayVariable) ElementAt(i int) (plexval.Value, bool) {
	return av.Base.RawValue().ElementAt(i)
}

// SetElement writes a single element. Out-of-range indices and
// type-mismatched values are fatal expression errors (spec §4.1's array
// subscript semantics apply symmetrically to writes).
func (av *ArrayVariable) SetElement(i int, v plexval.Value) error {
	if av.isConst {
		return plexval.NewExpressionError("plexexpr.SetElement", "element assignment to const array "+av.Name())
	}
	current := av.Base.RawValue()
	n := current.Len()
	if i < 0 || i >= n {
		return plexval.NewExpressionError("plexexpr.SetElement", "array index out of range on "+av.Name())
	}
	if v.IsKnown() && v.Type() != av.elementType {
		return plexval.NewExpressionError("plexexpr.SetElement", "element type mismatch on "+av.Name())
	}

	next := cloneWithElement(current, av.elementType, i, v)
	av.owned = true
	av.Base.SetValue(next)
	return nil
}

// Reset restores the frozen initial array regardless of any element
// writes performed since construction or the previous Reset/Restore.
func (av *ArrayVariable) Reset() error {
	av.owned = false
	av.Base.SetValue(av.InitialValue())
	return nil
}

func cloneWithElement(current plexval.Value, elemType plexval.Type, i int, v plexval.Value) plexval.Value {
	n := current.Len()
	switch elemType {
	case plexval.TypeBoolean:
		elems := make([]bool, n)
		unknown := make([]bool, n)
		for j := 0; j < n; j++ {
			e, _ := current.ElementAt(j)
			b, ok := e.AsBool()
			elems[j] = b
			unknown[j] = !ok
		}
		if b, ok := v.AsBool(); ok {
			elems[i] = b
			unknown[i] = false
		} else {
			unknown[i] = true
		}
		return plexval.BooleanArray(elems, unknown)
	case plexval.TypeInteger:
		elems := make([]int64, n)
		unknown := make([]bool, n)
		for j := 0; j < n; j++ {
			e, _ := current.ElementAt(j)
			iv, ok := e.AsInt()
			elems[j] = iv
			unknown[j] = !ok
		}
		if iv, ok := v.AsInt(); ok {
			elems[i] = iv
			unknown[i] = false
		} else {
			unknown[i] = true
		}
		return plexval.IntegerArray(elems, unknown)
	case plexval.TypeReal:
		elems := make([]float64, n)
		unknown := make([]bool, n)
		for j := 0; j < n; j++ {
			e, _ := current.ElementAt(j)
			r, ok := e.AsReal()
			elems[j] = r
			unknown[j] = !ok
		}
		if r, ok := v.AsReal(); ok {
			elems[i] = r
			unknown[i] = false
		} else {
			unknown[i] = true
		}
		return plexval.RealArray(elems, unknown)
	default: // plexval.TypeString
		elems := make([]string, n)
		unknown := make([]bool, n)
		for j := 0; j < n; j++ {
			e, _ := current.ElementAt(j)
			s, ok := e.AsString()
			elems[j] = s
			unknown[j] = !ok
		}
		if s, ok := v.AsString(); ok {
			elems[i] = s
			unknown[i] = false
		} else {
			unknown[i] = true
		}
		return plexval.StringArray(elems, unknown)
	}
}
