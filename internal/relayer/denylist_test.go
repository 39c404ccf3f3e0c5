package relayer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jito-foundation/relayer/internal/altcache"
	"github.com/jito-foundation/relayer/internal/txn"
)

func TestDenylist_EmptyBlocksNothing(t *testing.T) {
	d := NewDenylist(nil)
	require.True(t, d.Empty())
	require.False(t, d.Blocks(context.Background(), nil, &txn.Message{}))
}

func TestDenylist_BlocksSignerAccount(t *testing.T) {
	var blocked txn.PublicKey
	blocked[0] = 0x42

	d := NewDenylist([]txn.PublicKey{blocked})
	require.False(t, d.Empty())

	msg := &txn.Message{
		Header:      txn.MessageHeader{NumRequiredSignatures: 1},
		AccountKeys: []txn.PublicKey{blocked},
	}
	require.True(t, d.Blocks(context.Background(), nil, msg))
}

func TestDenylist_PermitsUnlistedAccount(t *testing.T) {
	var blocked, other txn.PublicKey
	blocked[0] = 0x42
	other[0] = 0x43

	d := NewDenylist([]txn.PublicKey{blocked})

	msg := &txn.Message{
		Header:      txn.MessageHeader{NumRequiredSignatures: 1},
		AccountKeys: []txn.PublicKey{other},
	}
	require.False(t, d.Blocks(context.Background(), nil, msg))
}

func TestDenylist_BlocksViaLookupTableExpansion(t *testing.T) {
	var blocked, tableKey txn.PublicKey
	blocked[0] = 0x99
	tableKey[0] = 0x01

	cache := altcache.NewMemory()
	cache.Put(tableKey, []txn.PublicKey{blocked})

	d := NewDenylist([]txn.PublicKey{blocked})

	msg := &txn.Message{
		Versioned:   true,
		AddressTableLookups: []txn.AddressTableLookup{
			{AccountKey: tableKey, WritableIndexes: []byte{0}},
		},
	}
	require.True(t, d.Blocks(context.Background(), cache, msg))
}

func TestDenylistSnapshot_StoreLoad(t *testing.T) {
	s := NewDenylistSnapshot()
	require.True(t, s.Load().Empty())

	var blocked txn.PublicKey
	blocked[0] = 1
	s.Store(NewDenylist([]txn.PublicKey{blocked}))
	require.False(t, s.Load().Empty())
}
