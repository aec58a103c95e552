package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService(t *testing.T) *Service {
	t.Helper()
	svc, err := New(hex.EncodeToString(bytes.Repeat([]byte{7}, 32)))
	require.NoError(t, err)
	return svc
}

func TestSealRoundTrip(t *testing.T) {
	svc := testService(t)
	sealed, encrypted, err := svc.Seal("paystubs/ana.pdf", []byte("%PDF-1.3 pay stub"))
	require.NoError(t, err)
	assert.True(t, encrypted)
	assert.NotContains(t, string(sealed), "pay stub")

	plain, err := svc.Open("paystubs/ana.pdf", sealed)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.3 pay stub", string(plain))
}

func TestOpenRejectsMovedObject(t *testing.T) {
	svc := testService(t)
	sealed, _, err := svc.Seal("checks/0001.pdf", []byte("check"))
	require.NoError(t, err)

	_, err = svc.Open("checks/0002.pdf", sealed)
	assert.Error(t, err)

	_, err = svc.Open("checks/0001.pdf", sealed[:4])
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestSealWithoutKeyPassesThrough(t *testing.T) {
	svc, err := New("")
	require.NoError(t, err)
	out, encrypted, err := svc.Seal("k", []byte("doc"))
	require.NoError(t, err)
	assert.False(t, encrypted)
	assert.Equal(t, "doc", string(out))
}

func TestNewRejectsShortKey(t *testing.T) {
	_, err := New(hex.EncodeToString([]byte("short")))
	assert.Error(t, err)
}
