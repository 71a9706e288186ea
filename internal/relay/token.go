/*
Copyright 2026 The slskd Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package relay

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"

	"github.com/slskd/slskd/internal/slskderrors"
	"github.com/slskd/slskd/internal/tokencache"
)

// Kind distinguishes the four capability-token flavors of §3 "Capability
// token". All are one-shot except DownloadNotify, which is idempotent
// within its TTL window.
type Kind int

const (
	KindAuth Kind = iota
	KindShareUpload
	KindFileStream
	KindDownloadNotify
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindShareUpload:
		return "share-upload"
	case KindFileStream:
		return "file-stream"
	case KindDownloadNotify:
		return "download-notify"
	default:
		return "unknown"
	}
}

// Fixed TTLs from §4.C4. FileStream's TTL is caller-supplied (the
// operation's own timeout), so it has no constant here.
const (
	AuthTokenTTL           = 10 * time.Second
	ShareUploadTokenTTL    = 5 * time.Minute
	DownloadNotifyTokenTTL = 10 * time.Minute
)

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// tokenByteLen is the fixed size of every issued token (§4.C4 "32 random
// bytes"). decodeBase62 pads back up to this length since big.Int's
// minimal byte encoding drops leading zero bytes.
const tokenByteLen = 32

// base62Encode renders b as a base62 string, the wire format for
// tokens pushed to agents (§4.C4 "32 random bytes, Base62").
func base62Encode(b []byte) string {
	n := new(big.Int).SetBytes(b)
	if n.Sign() == 0 {
		return string(base62Alphabet[0])
	}
	base := big.NewInt(62)
	mod := new(big.Int)
	var out []byte
	for n.Sign() > 0 {
		n.DivMod(n, base, mod)
		out = append(out, base62Alphabet[mod.Int64()])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

// TokenStore issues and validates capability tokens on top of an
// ExpiringTokenCache, the L3 collaborator (§4.C4 depends on L1, L3).
type TokenStore struct {
	cache *tokencache.Cache
}

// NewTokenStore wraps cache for capability-token bookkeeping.
func NewTokenStore(cache *tokencache.Cache) *TokenStore {
	return &TokenStore{cache: cache}
}

func cacheKey(kind Kind, key string) string {
	return fmt.Sprintf("%s:%s", kind, key)
}

// Issue generates a fresh 32-byte token for (kind, key), caches it for
// ttl, and returns both the raw bytes (for local credential computation)
// and its Base62 wire form (to push to the agent).
func (ts *TokenStore) Issue(kind Kind, key string, ttl time.Duration) (tokenBytes []byte, tokenString string, err error) {
	tokenBytes = make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, "", slskderrors.Wrap("relay.TokenStore.Issue", slskderrors.KindUnknown, err)
	}
	tokenString = base62Encode(tokenBytes)
	if err := ts.cache.Set(cacheKey(kind, key), base64.StdEncoding.EncodeToString(tokenBytes), ttl); err != nil {
		return nil, "", slskderrors.Wrap("relay.TokenStore.Issue", slskderrors.KindUnknown, err)
	}
	return tokenBytes, tokenString, nil
}

// Validate checks credential against the cached token for (kind, key).
// Every kind except DownloadNotify consumes the token on this call,
// pass or fail, per §4.C4's one-shot rule; DownloadNotify tokens survive
// repeated validation within their TTL.
func (ts *TokenStore) Validate(kind Kind, key, secret, agentName string, credential []byte) bool {
	var raw string
	var ok bool
	if kind == KindDownloadNotify {
		raw, ok = ts.cache.Get(cacheKey(kind, key))
	} else {
		raw, ok = ts.cache.GetAndRemove(cacheKey(kind, key))
	}
	if !ok {
		return false
	}
	tokenBytes, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return false
	}
	return ValidateCredential(secret, agentName, tokenBytes, credential)
}

// IssueSelfKeyed issues a token the way begin_share_upload does: the
// token's own Base62 string doubles as its cache key, since the agent's
// subsequent POST identifies the capability purely by the token value in
// the URL (`/network/shares/{token}`), with no connection id in hand.
func (ts *TokenStore) IssueSelfKeyed(kind Kind, ttl time.Duration) (tokenBytes []byte, tokenString string, err error) {
	tokenBytes = make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, "", slskderrors.Wrap("relay.TokenStore.IssueSelfKeyed", slskderrors.KindUnknown, err)
	}
	tokenString = base62Encode(tokenBytes)
	if err := ts.cache.Set(cacheKey(kind, tokenString), base64.StdEncoding.EncodeToString(tokenBytes), ttl); err != nil {
		return nil, "", slskderrors.Wrap("relay.TokenStore.IssueSelfKeyed", slskderrors.KindUnknown, err)
	}
	return tokenBytes, tokenString, nil
}

// Revoke removes the cached token for (kind, key) unconditionally, used
// when a relay operation fails and its capability must not outlive the
// failure (§8 S4).
func (ts *TokenStore) Revoke(kind Kind, key string) {
	ts.cache.Remove(cacheKey(kind, key))
}
