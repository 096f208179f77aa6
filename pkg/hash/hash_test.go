// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	assert.Equal(t, "da39a3ee5e6b4b0d3255bfef95601890afd80709", String(nil))
	assert.Equal(t, String([]byte("ab")), String([]byte("a"), []byte("b")))
	assert.Equal(t, "801c3426", Hash([]byte("AA")).Short())
}

func TestFromString(t *testing.T) {
	sig := Hash([]byte("input"))
	got, err := FromString(sig.String())
	require.NoError(t, err)
	assert.Equal(t, sig, got)

	_, err = FromString("zz")
	assert.Error(t, err)
	_, err = FromString("abcd")
	assert.Error(t, err)
}
