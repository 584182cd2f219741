package did

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "algodid/pkg/domain-errors"
)

func testAddress(t *testing.T, seed byte) types.Address {
	t.Helper()
	var addr types.Address
	for i := range addr {
		addr[i] = seed + byte(i)
	}
	return addr
}

func TestFormat(t *testing.T) {
	addr := testAddress(t, 1)
	id, err := New(addr, 42)
	require.NoError(t, err)

	assert.Equal(t, "did:algo:"+addr.String()+"-42", id.String())
	assert.Equal(t, addr[:], id.PublicKey())
}

func TestParseFormatRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for range 200 {
		var addr types.Address
		rng.Read(addr[:])
		appID := rng.Uint64()
		if appID == 0 {
			appID = 1
		}
		id, err := New(addr, appID)
		require.NoError(t, err)

		parsed, err := Parse(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	addr := testAddress(t, 3).String()
	badChecksum := addr[:10] + string(flip(addr[10])) + addr[11:]

	cases := map[string]string{
		"empty":              "",
		"not a did":          "algo:" + addr + "-1",
		"wrong method":       "did:web:" + addr + "-1",
		"missing app id":     "did:algo:" + addr,
		"empty app id":       "did:algo:" + addr + "-",
		"zero app id":        "did:algo:" + addr + "-0",
		"leading zero":       "did:algo:" + addr + "-042",
		"negative app id":    "did:algo:" + addr + "--5",
		"non numeric app id": "did:algo:" + addr + "-abc",
		"overflow app id":    "did:algo:" + addr + "-18446744073709551616",
		"bad checksum":       "did:algo:" + badChecksum + "-1",
		"short address":      "did:algo:" + addr[:20] + "-1",
		"lowercase address":  "did:algo:" + strings.ToLower(addr) + "-1",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeMalformedIdentifier), "got %v", err)
		})
	}
}

func TestNewValidatesParts(t *testing.T) {
	_, err := New(types.Address{}, 1)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidAddress))

	_, err = New(testAddress(t, 9), 0)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidAppID))
}

func TestTextMarshalling(t *testing.T) {
	id, err := New(testAddress(t, 5), 1234)
	require.NoError(t, err)

	text, err := id.MarshalText()
	require.NoError(t, err)

	var decoded Identifier
	require.NoError(t, decoded.UnmarshalText(text))
	assert.Equal(t, id, decoded)
}

func flip(c byte) byte {
	if c == 'A' {
		return 'B'
	}
	return 'A'
}
