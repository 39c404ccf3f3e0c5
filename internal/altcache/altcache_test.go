package altcache

import (
	"context"
	"testing"

	"github.com/jito-foundation/relayer/internal/txn"
	"github.com/stretchr/testify/require"
)

func TestMemory_ExpandLookups(t *testing.T) {
	cache := NewMemory()

	var table txn.PublicKey
	table[0] = 0xAA

	var k0, k1, k2 txn.PublicKey
	k0[0], k1[0], k2[0] = 1, 2, 3
	cache.Put(table, []txn.PublicKey{k0, k1, k2})

	msg := &txn.Message{
		AddressTableLookups: []txn.AddressTableLookup{
			{AccountKey: table, WritableIndexes: []byte{0}, ReadonlyIndexes: []byte{2}},
		},
	}

	writable, readonly := ExpandLookups(context.Background(), cache, msg)
	require.Equal(t, []txn.PublicKey{k0}, writable)
	require.Equal(t, []txn.PublicKey{k2}, readonly)
}

func TestMemory_ExpandLookups_UnknownTableSkipped(t *testing.T) {
	cache := NewMemory()
	var table txn.PublicKey
	msg := &txn.Message{
		AddressTableLookups: []txn.AddressTableLookup{
			{AccountKey: table, WritableIndexes: []byte{0}},
		},
	}

	writable, readonly := ExpandLookups(context.Background(), cache, msg)
	require.Nil(t, writable)
	require.Nil(t, readonly)
}
