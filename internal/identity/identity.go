// Package identity maps raw fingerprint hashes to stable visitor identities.
package identity

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// canonicalUUID matches an RFC 4122 UUID in its hyphenated form, with a
// valid version and variant. Fingerprints that already arrive in this
// shape are used as the visitor identity directly.
var canonicalUUID = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// Resolve derives the stable visitor identity for a fingerprint hash.
//
// The derivation is deterministic: the same fingerprint always yields the
// same identity regardless of request order or restarts, and distinct
// fingerprints collide only with SHA-1 probability. Non-UUID fingerprints
// are mapped through a name-based (v5) UUID in the DNS namespace.
func Resolve(fingerprintHash string) string {
	if canonicalUUID.MatchString(strings.ToLower(fingerprintHash)) {
		return strings.ToLower(fingerprintHash)
	}
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(fingerprintHash)).String()
}
