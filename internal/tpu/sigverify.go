package tpu

import (
	"crypto/ed25519"

	"github.com/jito-foundation/relayer/internal/logging"
	"github.com/jito-foundation/relayer/internal/txn"
)

// VerifyBatch implements the SigVerify stage (C4): it verifies every
// packet's signatures against its own declared signer keys, batched per
// PacketBatch, and marks (rather than removes) packets that fail to
// parse or fail verification. Downstream stages filter discards out;
// VerifyBatch itself never drops a packet from the batch (§4.4).
//
// A malformed packet (fails to parse as a transaction) is logged and
// marked discarded, matching the log-and-continue policy for
// malformed-packet errors in §7. There is no fatal path here: verifier
// initialization in this package has nothing to fail at, since ed25519
// verification needs no external state.
func VerifyBatch(batch *PacketBatch, log *logging.Logger) {
	if log == nil {
		log = logging.NoOp()
	}
	for i := range batch.Packets {
		p := &batch.Packets[i]
		if p.Discard {
			continue
		}
		if !verifyPacket(p.Data) {
			p.Discard = true
			log.Debug().Log("packet failed signature verification")
		}
	}
}

// verifyPacket parses data as a signed transaction and verifies every
// signature against its corresponding signer account key. A transaction
// with fewer signer keys than signatures, a parse failure, or any single
// bad signature fails the whole packet.
func verifyPacket(data []byte) bool {
	tx, err := txn.ParseTransaction(data)
	if err != nil {
		return false
	}

	signers := tx.Message.SignerKeys()
	if len(tx.Signatures) > len(signers) {
		return false
	}

	for i, sig := range tx.Signatures {
		pub := ed25519.PublicKey(signers[i][:])
		if !ed25519.Verify(pub, tx.MessageBytes, sig[:]) {
			return false
		}
	}

	return true
}
