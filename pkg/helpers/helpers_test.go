package helpers

import (
	"math/big"
	"testing"
)

func TestHexToBytes(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"prefixed", "0xdeadbeef", "0xdeadbeef", false},
		{"bare", "deadbeef", "0xdeadbeef", false},
		{"upper prefix", "0XAB", "0xab", false},
		{"odd length", "0xabc", "0x0abc", false},
		{"invalid", "0xzz", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HexToBytes(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("HexToBytes(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && BytesToHex(got) != tt.want {
				t.Errorf("HexToBytes(%q) = %s, want %s", tt.in, BytesToHex(got), tt.want)
			}
		})
	}
}

func TestHexToFixed(t *testing.T) {
	if _, err := HexToFixed("0x0102", 32); err == nil {
		t.Error("HexToFixed should reject short input")
	}
	b, err := HexToFixed("0x0102", 2)
	if err != nil {
		t.Fatalf("HexToFixed() error = %v", err)
	}
	if b[0] != 1 || b[1] != 2 {
		t.Errorf("HexToFixed() = %v, want [1 2]", b)
	}
}

func TestConstantTimeCompare(t *testing.T) {
	if !ConstantTimeCompare([]byte{1, 2}, []byte{1, 2}) {
		t.Error("equal slices reported different")
	}
	if ConstantTimeCompare([]byte{1, 2}, []byte{1, 3}) {
		t.Error("different slices reported equal")
	}
	if ConstantTimeCompare([]byte{1}, []byte{1, 0}) {
		t.Error("different lengths reported equal")
	}
}

func TestCopyBytes(t *testing.T) {
	if CopyBytes(nil) != nil {
		t.Error("CopyBytes(nil) should be nil")
	}
	src := []byte{1, 2, 3}
	dst := CopyBytes(src)
	dst[0] = 9
	if src[0] != 1 {
		t.Error("CopyBytes aliases its input")
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount   uint64
		decimals uint8
		want     string
	}{
		{1500000, 6, "1.5"},
		{1000000, 6, "1"},
		{1, 6, "0.000001"},
		{42, 0, "42"},
		{0, 18, "0"},
	}

	for _, tt := range tests {
		if got := FormatAmount(tt.amount, tt.decimals); got != tt.want {
			t.Errorf("FormatAmount(%d, %d) = %s, want %s", tt.amount, tt.decimals, got, tt.want)
		}
	}

	wei, _ := new(big.Int).SetString("1230000000000000000", 10)
	if got := FormatBigAmount(wei, 18); got != "1.23" {
		t.Errorf("FormatBigAmount() = %s, want 1.23", got)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint8
		want     uint64
		wantErr  bool
	}{
		{"1.5", 6, 1500000, false},
		{"1", 6, 1000000, false},
		{".25", 2, 25, false},
		{"0.0000001", 6, 0, true},
		{"1a", 6, 0, true},
		{"", 6, 0, true},
		{"18446744073709551616", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in, tt.decimals)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAmount(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseAmount(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
