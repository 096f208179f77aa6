// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package hash names inputs by content.
package hash

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

type Sig [sha1.Size]byte

func Hash(pieces ...[]byte) Sig {
	h := sha1.New()
	for _, data := range pieces {
		h.Write(data)
	}
	var sig Sig
	copy(sig[:], h.Sum(nil))
	return sig
}

// String returns the hex hash of the concatenation of pieces.
func String(pieces ...[]byte) string {
	sig := Hash(pieces...)
	return sig.String()
}

func (sig Sig) String() string {
	return hex.EncodeToString(sig[:])
}

// Short returns the first 8 hex digits, enough to refer to an input in logs.
func (sig Sig) Short() string {
	return sig.String()[:8]
}

func FromString(str string) (Sig, error) {
	bin, err := hex.DecodeString(str)
	if err != nil {
		return Sig{}, fmt.Errorf("failed to decode sig %q: %w", str, err)
	}
	var sig Sig
	if len(bin) != len(sig) {
		return Sig{}, fmt.Errorf("failed to decode sig %q: bad len %v", str, len(bin))
	}
	copy(sig[:], bin)
	return sig, nil
}
