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

// Package relay implements §4.C4's RelayCoordinator: the controller/agent
// handshake, capability-token issuance, and the waiter-mediated
// file-stream and file-info proxying protocols.
package relay

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/subtle"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 10000
	derivedKeyLen    = 48 // 32B AES-256 key + 16B CTR nonce
)

// DeriveKey computes the per-agent key material: PBKDF2(secret,
// salt=agentName, 48B) per §4.C4 step 2.
func DeriveKey(secret, agentName string) []byte {
	return pbkdf2.Key([]byte(secret), []byte(agentName), pbkdf2Iterations, derivedKeyLen, sha256.New)
}

// ComputeCredential derives the expected credential for tokenBytes under
// the given agent secret, AES(tokenBytes, key=PBKDF2(...)).
func ComputeCredential(secret, agentName string, tokenBytes []byte) ([]byte, error) {
	key := DeriveKey(secret, agentName)
	block, err := aes.NewCipher(key[:32])
	if err != nil {
		return nil, err
	}
	stream := cipher.NewCTR(block, key[32:48])
	out := make([]byte, len(tokenBytes))
	stream.XORKeyStream(out, tokenBytes)
	return out, nil
}

// ValidateCredential reports whether credential is the correct AES
// transform of tokenBytes under secret/agentName, in constant time.
func ValidateCredential(secret, agentName string, tokenBytes, credential []byte) bool {
	expected, err := ComputeCredential(secret, agentName, tokenBytes)
	if err != nil || len(expected) != len(credential) {
		return false
	}
	return subtle.ConstantTimeCompare(expected, credential) == 1
}
