package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatCode(t *testing.T) {
	assert.Equal(t, "U001", FormatCode("U", 1))
	assert.Equal(t, "A007", FormatCode("A", 7))
	assert.Equal(t, "LAB042", FormatCode("LAB", 42))
	assert.Equal(t, "T1000", FormatCode("T", 1000))
}

func TestNormalizePrefix(t *testing.T) {
	assert.Equal(t, "T", NormalizePrefix("  "))
	assert.Equal(t, "U", NormalizePrefix(" u "))
	assert.Equal(t, "ABCDE", NormalizePrefix("abcdefg"))
}

func TestParseOrdinal(t *testing.T) {
	n, ok := ParseOrdinal("A", "A007")
	assert.True(t, ok)
	assert.Equal(t, 7, n)

	_, ok = ParseOrdinal("A", "AB001")
	assert.False(t, ok, "codes of a longer prefix are not ours")

	_, ok = ParseOrdinal("A", "U001")
	assert.False(t, ok)

	_, ok = ParseOrdinal("A", "A")
	assert.False(t, ok)

	_, ok = ParseOrdinal("A", "A000")
	assert.False(t, ok)
}

func TestChooseOrdinal(t *testing.T) {
	cases := []struct {
		name      string
		candidate int
		held      []int
		want      int
	}{
		{"empty day", 1, nil, 1},
		{"sequence continues", 3, []int{1, 2}, 3},
		{"reuses cancelled first", 3, []int{2}, 1},
		{"fills hole below candidate", 5, []int{1, 3, 4}, 2},
		{"candidate held scans up", 2, []int{1, 2, 3}, 4},
		{"counter behind after restart", 1, []int{1, 2}, 3},
		{"zero candidate", 0, []int{1}, 2},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			held := map[int]bool{}
			for _, n := range tt.held {
				held[n] = true
			}
			assert.Equal(t, tt.want, ChooseOrdinal(tt.candidate, held))
		})
	}
}

func TestHeldOrdinalsIgnoresOtherPrefixes(t *testing.T) {
	held := HeldOrdinals("U", []string{"U001", "U003", "UX002", "A002"})
	assert.Equal(t, map[int]bool{1: true, 3: true}, held)
}

func TestReuseScenario(t *testing.T) {
	// U001, U002 issued; U001 cancelled; next allocation reuses U001.
	active := []string{"U002"}
	ordinal := ChooseOrdinal(3, HeldOrdinals("U", active))
	assert.Equal(t, "U001", FormatCode("U", ordinal))
}
