package services

import (
	"crypto/sha1"
	"encoding/hex"

	"github.com/sahafa-network/guard_api/shared"
)

const signaturePrefix = "rate_limit:"

// ResolveSignature derives the opaque bucket key for a request. Identical
// inputs always produce identical keys; the prefix namespaces limiter keys
// away from unrelated cache entries.
func ResolveSignature(limiterType, routeName, userID, ip string) string {
	var signature string

	switch limiterType {
	case shared.LimiterTypeAPI:
		signature = "api|" + ip
	case shared.LimiterTypeWeb:
		signature = "web|" + ip
	case shared.LimiterTypeRoute:
		if routeName == "" {
			routeName = "unknown"
		}
		signature = "route|" + routeName + "|" + ip
	case shared.LimiterTypeUser:
		if userID == "" {
			userID = shared.RoleGuest
		}
		signature = "user|" + userID + "|" + ip
	default:
		signature = limiterType + "|" + ip
	}

	sum := sha1.Sum([]byte(signature))
	return signaturePrefix + hex.EncodeToString(sum[:])
}
