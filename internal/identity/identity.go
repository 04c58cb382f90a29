// Package identity resolves the credentials used for one connection
// attempt: a real account when a token and username are supplied,
// otherwise the anonymous read-only justinfan identity.
package identity

import (
	"fmt"
	"math/rand"
	"strings"
)

// Identity is the nick/pass pair sent during the protocol handshake.
type Identity struct {
	Nick      string
	Pass      string
	Anonymous bool
}

// Resolve picks the identity for a single attempt. It is called fresh on
// every (re)connect so credential changes apply on the next attempt.
func Resolve(accessToken, username string) Identity {
	if accessToken != "" && username != "" {
		return Identity{
			Nick: strings.ToLower(username),
			Pass: "oauth:" + accessToken,
		}
	}
	return Identity{
		Nick:      fmt.Sprintf("justinfan%d", 10000+rand.Intn(9000000)),
		Pass:      "oauth:anonymous",
		Anonymous: true,
	}
}
