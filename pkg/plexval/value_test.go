package plexval

import (
	"math"
	"testing"
)

func TestKnownness(t *testing.T) {
	if Unknown.IsKnown() {
		t.Fatal("zero Value must be Unknown")
	}
	if !Boolean(true).IsKnown() {
		t.Fatal("Boolean(true) must be known")
	}
}

func TestAsNumeric(t *testing.T) {
	if r, ok := Integer(5).AsNumeric(); !ok || r != 5.0 {
		t.Fatalf("Integer(5).AsNumeric() = %v, %v", r, ok)
	}
	if r, ok := Real(2.5).AsNumeric(); !ok || r != 2.5 {
		t.Fatalf("Real(2.5).AsNumeric() = %v, %v", r, ok)
	}
	if _, ok := String("x").AsNumeric(); ok {
		t.Fatal("String must not be numeric")
	}
}

func TestEqual(t *testing.T) {
	if !Integer(3).Equal(Integer(3)) {
		t.Fatal("Integer(3) should equal Integer(3)")
	}
	if Integer(3).Equal(Real(3)) {
		t.Fatal("cross-type equality must be false even for matching magnitude")
	}
	if Unknown.Equal(Boolean(false)) {
		t.Fatal("Unknown must never equal a known value")
	}
}

func TestArrayConstructionAndElementAt(t *testing.T) {
	arr := IntegerArray([]int64{10, 20, 30}, []bool{false, true, false})
	if arr.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", arr.Len())
	}
	v, ok := arr.ElementAt(0)
	if !ok || v.Equal(Unknown) {
		t.Fatalf("element 0 should be known 10, got %v ok=%v", v, ok)
	}
	i, _ := v.AsInt()
	if i != 10 {
		t.Fatalf("element 0 = %d, want 10", i)
	}
	v, ok = arr.ElementAt(1)
	if !ok || v.IsKnown() {
		t.Fatalf("element 1 should be Unknown per mask, got %v ok=%v", v, ok)
	}
	if _, ok := arr.ElementAt(3); ok {
		t.Fatal("out-of-range index must report ok=false")
	}
}

func TestInIntegerRangeAndFinite(t *testing.T) {
	if !InIntegerRange(100) {
		t.Fatal("100 should be in range")
	}
	if InIntegerRange(1 << 32) {
		t.Fatal("1<<32 should be out of range")
	}
	if Finite(math.Inf(1)) {
		t.Fatal("+Inf must not be finite")
	}
	if !Finite(3.14) {
		t.Fatal("3.14 must be finite")
	}
}
