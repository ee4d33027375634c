// Package ticketid generates customer-facing ticket identifiers.
package ticketid

import (
	"crypto/rand"
	"encoding/binary"
	"regexp"
	"strconv"
	"strings"
)

const (
	prefix  = "TKT-"
	bodyLen = 10
)

var pattern = regexp.MustCompile(`^TKT-[A-Z0-9]{10}$`)

// New returns a fresh identifier of the form TKT- followed by ten uppercase
// base-36 characters. Randomness comes from a CSPRNG: the identifier is
// customer-facing and must not be guessable or enumerable.
func New() string {
	var body strings.Builder
	for body.Len() < bodyLen {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			panic("ticketid: crypto/rand unavailable: " + err.Error())
		}
		n := binary.BigEndian.Uint64(buf[:])
		body.WriteString(strings.ToUpper(strconv.FormatUint(n, 36)))
	}
	return prefix + body.String()[:bodyLen]
}

// Valid reports whether s is a well-formed ticket identifier.
func Valid(s string) bool {
	return pattern.MatchString(s)
}
