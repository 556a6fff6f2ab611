package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quick-xyz/indexer-sub000/internal/apperr"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
)

type fakeStore struct {
	byKey map[string][]byte
}

func (f *fakeStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, ok := f.byKey[key]
	return data, ok, nil
}

type erroringStore struct{ err error }

func (f *erroringStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, f.err }

type fakeRPC struct {
	block *Block
	err   error
}

func (f *fakeRPC) FetchBlock(context.Context, uint64) (*Block, error) { return f.block, f.err }

func TestBlockSourceHitsFirstSource(t *testing.T) {
	sources := []domain.Source{{Name: "primary", Path: "blocks", Format: "{:012d}.json"}}
	payload := []byte(`{"hash":"0xabc","number":"0x64","timestamp":"0x5f5e100","transactions":[],"receipts":[]}`)
	store := &fakeStore{byKey: map[string][]byte{"blocks/000000000100.json": payload}}

	bs := NewBlockSource(store, &fakeRPC{}, sources, zerolog.Nop())
	block, err := bs.Fetch(context.Background(), 100)
	require.NoError(t, err)
	assert.EqualValues(t, 100, block.Header.Number)
}

func TestBlockSourceFallsBackToRPCOn404(t *testing.T) {
	sources := []domain.Source{{Name: "primary", Path: "blocks", Format: "{:012d}.json"}}
	store := &fakeStore{byKey: map[string][]byte{}}
	want := &Block{Header: Header{Number: 7}}

	bs := NewBlockSource(store, &fakeRPC{block: want}, sources, zerolog.Nop())
	got, err := bs.Fetch(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestBlockSourceNonNotFoundErrorIsFatal(t *testing.T) {
	sources := []domain.Source{{Name: "primary", Path: "blocks", Format: "{:012d}.json"}}
	store := &erroringStore{err: errors.New("connection reset")}

	bs := NewBlockSource(store, &fakeRPC{}, sources, zerolog.Nop())
	_, err := bs.Fetch(context.Background(), 1)
	require.Error(t, err)
	var bfe *apperr.BlockFetchError
	require.ErrorAs(t, err, &bfe)
}

func TestBlockSourceRPCFailureIsFatal(t *testing.T) {
	sources := []domain.Source{{Name: "primary", Path: "blocks", Format: "{:012d}.json"}}
	store := &fakeStore{byKey: map[string][]byte{}}

	bs := NewBlockSource(store, &fakeRPC{err: errors.New("dial timeout")}, sources, zerolog.Nop())
	_, err := bs.Fetch(context.Background(), 1)
	require.Error(t, err)
	var bfe *apperr.BlockFetchError
	require.ErrorAs(t, err, &bfe)
}
