package math

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestBigInt(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T)
	}{
		{"TestPow10", testPow10},
		{"TestMulDiv", testMulDiv},
		{"TestMulBps", testMulBps},
		{"TestMulPercent", testMulPercent},
		{"TestMin", testMin},
		{"TestDecimalConversion", testDecimalConversion},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.fn)
	}
}

func testPow10(t *testing.T) {
	if got := Pow10(6); got.Int64() != 1_000_000 {
		t.Errorf("Pow10(6) = %v; want 1000000", got)
	}
	if got := Pow10(0); got.Int64() != 1 {
		t.Errorf("Pow10(0) = %v; want 1", got)
	}
}

func testMulDiv(t *testing.T) {
	got := MulDiv(big.NewInt(7), big.NewInt(3), big.NewInt(2))
	if got.Int64() != 10 {
		t.Errorf("MulDiv(7, 3, 2) = %v; want 10", got)
	}
}

func testMulBps(t *testing.T) {
	// 5 bps of 1,000,000
	got := MulBps(big.NewInt(1_000_000), 5)
	if got.Int64() != 500 {
		t.Errorf("MulBps(1000000, 5) = %v; want 500", got)
	}
}

func testMulPercent(t *testing.T) {
	got := MulPercent(big.NewInt(12345), 10)
	if got.Int64() != 1234 {
		t.Errorf("MulPercent(12345, 10) = %v; want 1234", got)
	}
}

func testMin(t *testing.T) {
	a, b := big.NewInt(3), big.NewInt(9)
	if Min(a, b) != a || Min(b, a) != a {
		t.Errorf("Min did not return the smaller operand")
	}
}

func testDecimalConversion(t *testing.T) {
	raw := big.NewInt(1_500_000)
	human := ToDecimal(raw, 6)
	if !human.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("ToDecimal(1500000, 6) = %v; want 1.5", human)
	}

	back := FromDecimal(decimal.RequireFromString("1.5000009"), 6)
	if back.Cmp(raw) != 0 {
		t.Errorf("FromDecimal truncation = %v; want %v", back, raw)
	}

	if !ToDecimal(nil, 18).IsZero() {
		t.Errorf("ToDecimal(nil) should be zero")
	}
}

func BenchmarkMulBps(b *testing.B) {
	amount := new(big.Int).Mul(big.NewInt(1e18), big.NewInt(1000))
	for i := 0; i < b.N; i++ {
		MulBps(amount, 9)
	}
}
