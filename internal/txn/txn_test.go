package txn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func compactU16Bytes(n int) []byte {
	var out []byte
	v := uint32(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			break
		}
	}
	return out
}

func buildLegacyTx(numSigs, numAccounts int, readonlySigned, readonlyUnsigned byte) []byte {
	var b []byte
	b = append(b, compactU16Bytes(numSigs)...)
	for i := 0; i < numSigs; i++ {
		b = append(b, make([]byte, 64)...)
	}
	b = append(b, byte(numSigs), readonlySigned, readonlyUnsigned)
	b = append(b, compactU16Bytes(numAccounts)...)
	for i := 0; i < numAccounts; i++ {
		key := make([]byte, 32)
		key[0] = byte(i + 1)
		b = append(b, key...)
	}
	b = append(b, make([]byte, 32)...) // recent blockhash
	b = append(b, compactU16Bytes(0)...) // no instructions
	return b
}

func TestParseTransaction_Legacy(t *testing.T) {
	data := buildLegacyTx(1, 3, 0, 1)

	tx, err := ParseTransaction(data)
	require.NoError(t, err)
	require.Len(t, tx.Signatures, 1)
	require.Len(t, tx.Message.AccountKeys, 3)
	require.False(t, tx.Message.Versioned)

	signers := tx.Message.SignerKeys()
	require.Len(t, signers, 1)
	require.Equal(t, byte(1), signers[0][0])

	writable := tx.Message.WritableKeys()
	require.Len(t, writable, 2) // account[0] (signed, writable) + account[1] (unsigned, writable)

	readonly := tx.Message.ReadonlyKeys()
	require.Len(t, readonly, 1) // account[2]: trailing readonly-unsigned
	require.Equal(t, byte(3), readonly[0][0])
}

func TestParseTransaction_Truncated(t *testing.T) {
	_, err := ParseTransaction([]byte{0x01})
	require.Error(t, err)
}

func TestCompactU16RoundTrip(t *testing.T) {
	r := &reader{b: compactU16Bytes(300)}
	v, err := r.compactU16()
	require.NoError(t, err)
	require.EqualValues(t, 300, v)
}
