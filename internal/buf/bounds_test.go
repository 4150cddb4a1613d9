package buf

import (
	"math"
	"testing"
)

func TestAddOverflowSafe(t *testing.T) {
	if sum, ok := AddOverflowSafe(10, 5); !ok || sum != 15 {
		t.Fatalf("AddOverflowSafe(10,5)=%d,%v want 15,true", sum, ok)
	}
	if _, ok := AddOverflowSafe(math.MaxInt, 1); ok {
		t.Fatalf("expected overflow when adding to MaxInt")
	}
	if _, ok := AddOverflowSafe(math.MinInt, -1); ok {
		t.Fatalf("expected underflow when subtracting from MinInt")
	}
}

func TestSliceAndHas(t *testing.T) {
	data := []byte{0, 1, 2, 3, 4}
	if got, ok := Slice(data, 1, 3); !ok || len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("Slice returned unexpected result: %v, %v", got, ok)
	}
	if _, ok := Slice(data, 4, 2); ok {
		t.Fatalf("Slice should fail when extending beyond len")
	}
	if Has(data, 2, 4) {
		t.Fatalf("Has should be false for out-of-bounds range")
	}
	if !Has(data, 2, 1) {
		t.Fatalf("Has should be true for valid range")
	}

	if _, ok := Slice(data, -1, 1); ok {
		t.Fatalf("Slice should reject negative offset")
	}
	if _, ok := Slice(data, 1, -1); ok {
		t.Fatalf("Slice should reject negative length")
	}
}

func TestCheckRange(t *testing.T) {
	tests := []struct {
		name    string
		lo, hi  int
		off, n  int
		wantErr bool
	}{
		{"inside", 0x1000, 0x2000, 0x1000, 0x100, false},
		{"exact end", 0x1000, 0x2000, 0x1F00, 0x100, false},
		{"below lo", 0x1000, 0x2000, 0xFF8, 0x10, true},
		{"past hi", 0x1000, 0x2000, 0x1FF8, 0x10, true},
		{"negative", 0, 10, -1, 2, true},
		{"overflow", 0, math.MaxInt, math.MaxInt, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckRange(tt.lo, tt.hi, tt.off, tt.n)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckRange(%d,%d,%d,%d) err=%v, wantErr=%v", tt.lo, tt.hi, tt.off, tt.n, err, tt.wantErr)
			}
		})
	}
}
