package ton

import (
	"strings"

	"github.com/xssnick/tonutils-go/address"
)

// ParseAddress accepts both the user-friendly base64 form and the raw
// "workchain:hex" form.
func ParseAddress(s string) (*address.Address, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ":") {
		return address.ParseRawAddr(s)
	}
	return address.ParseAddr(s)
}

// CanonicalID returns the raw form of a contract address, which is the
// canonical campaign and receipt identifier.
func CanonicalID(s string) (string, bool) {
	a, err := ParseAddress(s)
	if err != nil {
		return "", false
	}
	return a.StringRaw(), true
}

// IsAddress reports whether s is in either supported address format.
func IsAddress(s string) bool {
	_, ok := CanonicalID(s)
	return ok
}
