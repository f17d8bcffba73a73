package server

import (
	"sort"
	"strings"
)

// PrivateRoomID derives the deterministic room identifier for a two-party
// conversation: the participant ids sorted and joined with "-", so both
// participants compute the same room regardless of argument order.
func PrivateRoomID(userA, userB string) string {
	ids := []string{userA, userB}
	sort.Strings(ids)
	return strings.Join(ids, "-")
}
