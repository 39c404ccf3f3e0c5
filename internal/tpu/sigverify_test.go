package tpu

import (
	"crypto/ed25519"
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

// buildSignedLegacyTx constructs a wire-format legacy transaction signed by
// signers, matching the layout internal/txn.ParseTransaction expects: a
// compact-u16 signature array over the message bytes, followed by the
// message itself (header, account keys, a zero blockhash, no instructions).
func buildSignedLegacyTx(signers []ed25519.PrivateKey, extraAccounts int) []byte {
	numAccounts := len(signers) + extraAccounts

	var msg []byte
	msg = append(msg, byte(len(signers)), 0, 0) // header: all signers, none readonly
	msg = append(msg, compactU16Bytes(numAccounts)...)
	for _, s := range signers {
		msg = append(msg, s.Public().(ed25519.PublicKey)...)
	}
	for i := 0; i < extraAccounts; i++ {
		key := make([]byte, 32)
		key[0] = byte(i + 1)
		msg = append(msg, key...)
	}
	msg = append(msg, make([]byte, 32)...) // recent blockhash
	msg = append(msg, compactU16Bytes(0)...) // no instructions

	var data []byte
	data = append(data, compactU16Bytes(len(signers))...)
	for _, s := range signers {
		data = append(data, ed25519.Sign(s, msg)...)
	}
	data = append(data, msg...)
	return data
}

func TestVerifyBatch_MarksValidPacketUndiscarded(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	data := buildSignedLegacyTx([]ed25519.PrivateKey{priv}, 1)
	batch := &PacketBatch{Packets: []Packet{{Data: data}}}

	VerifyBatch(batch, nil)
	require.False(t, batch.Packets[0].Discard)
}

func TestVerifyBatch_DiscardsBadSignature(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	data := buildSignedLegacyTx([]ed25519.PrivateKey{priv}, 1)
	// Corrupt one byte of the signature.
	data[2] ^= 0xff

	batch := &PacketBatch{Packets: []Packet{{Data: data}}}
	VerifyBatch(batch, nil)
	require.True(t, batch.Packets[0].Discard)
}

func TestVerifyBatch_DiscardsUnparseablePacket(t *testing.T) {
	batch := &PacketBatch{Packets: []Packet{{Data: []byte{0x01}}}}
	VerifyBatch(batch, nil)
	require.True(t, batch.Packets[0].Discard)
}

func TestVerifyBatch_SkipsAlreadyDiscardedPacket(t *testing.T) {
	batch := &PacketBatch{Packets: []Packet{{Data: nil, Discard: true}}}
	VerifyBatch(batch, nil)
	require.True(t, batch.Packets[0].Discard)
}

func TestVerifyBatch_MultiplePacketsIndependentlyVerified(t *testing.T) {
	_, priv1, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, priv2, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	good := buildSignedLegacyTx([]ed25519.PrivateKey{priv1}, 0)
	bad := buildSignedLegacyTx([]ed25519.PrivateKey{priv2}, 0)
	bad[2] ^= 0xff

	batch := &PacketBatch{Packets: []Packet{{Data: good}, {Data: bad}}}
	VerifyBatch(batch, nil)

	require.False(t, batch.Packets[0].Discard)
	require.True(t, batch.Packets[1].Discard)
}
