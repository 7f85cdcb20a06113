package store

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	codeWidth     = 3
	defaultPrefix = "T"
	maxPrefixLen  = 5
)

func NormalizePrefix(prefix string) string {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return defaultPrefix
	}
	if len(prefix) > maxPrefixLen {
		prefix = prefix[:maxPrefixLen]
	}
	return prefix
}

func FormatCode(prefix string, ordinal int) string {
	return fmt.Sprintf("%s%0*d", prefix, codeWidth, ordinal)
}

// ParseOrdinal extracts the ordinal from a code issued under prefix. Codes
// whose remainder is not purely numeric belong to another prefix.
func ParseOrdinal(prefix, code string) (int, bool) {
	if !strings.HasPrefix(code, prefix) {
		return 0, false
	}
	rest := code[len(prefix):]
	if rest == "" {
		return 0, false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// HeldOrdinals collects the ordinals of the given active codes under prefix.
func HeldOrdinals(prefix string, codes []string) map[int]bool {
	held := make(map[int]bool, len(codes))
	for _, code := range codes {
		if n, ok := ParseOrdinal(prefix, code); ok {
			held[n] = true
		}
	}
	return held
}

// ChooseOrdinal keeps the sequence candidate when it is the lowest free
// ordinal and otherwise falls back to the smallest ordinal not held.
func ChooseOrdinal(candidate int, held map[int]bool) int {
	lowest := 1
	for held[lowest] {
		lowest++
	}
	if candidate >= 1 && candidate == lowest {
		return candidate
	}
	return lowest
}
