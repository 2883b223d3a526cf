package auth

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/saviobatista/fsd-connector/internal/types"
)

// MD5Responder is a Responder keyed by a shared secret.
// It lets two instances of this client, or a test server, authenticate each
// other without the network's native library.
type MD5Responder struct {
	ClientKey string
}

// NewMD5Responder creates a responder for the given secret.
// An empty secret behaves as a client without a public key.
func NewMD5Responder(clientKey string) *MD5Responder {
	return &MD5Responder{ClientKey: clientKey}
}

// GenerateChallenge returns 8 random bytes, hex encoded
func (r *MD5Responder) GenerateChallenge() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Respond digests the challenge with the key, the secret and the client hashes
func (r *MD5Responder) Respond(challenge, key string, props types.ClientProperties) string {
	return Digest(r.ClientKey + challenge + key + props.ClientHash + props.PluginHash)
}

// PublicKeyPresent reports whether a secret is configured
func (r *MD5Responder) PublicKeyPresent() bool {
	return r.ClientKey != ""
}
