package config

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quick-xyz/indexer-sub000/internal/apperr"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
)

type fakeConfigRepo struct {
	model     domain.Model
	modelErr  error
	contracts map[domain.Address]domain.Contract
	tracked   map[domain.Address]struct{}
	tokens    map[domain.Address]domain.Token
	sources   []domain.Source
}

func (f *fakeConfigRepo) GetModel(name string) (domain.Model, error) { return f.model, f.modelErr }
func (f *fakeConfigRepo) ContractsForModel(string) (map[domain.Address]domain.Contract, error) {
	return f.contracts, nil
}
func (f *fakeConfigRepo) TrackedTokensForModel(string) (map[domain.Address]struct{}, error) {
	return f.tracked, nil
}
func (f *fakeConfigRepo) GetToken(addr domain.Address) (domain.Token, error) {
	t, ok := f.tokens[addr]
	if !ok {
		return t, fmt.Errorf("not found")
	}
	return t, nil
}
func (f *fakeConfigRepo) SourcesForModel(string) ([]domain.Source, error) { return f.sources, nil }

func validRepo() *fakeConfigRepo {
	addr := domain.NewAddress("0xAAA0000000000000000000000000000000000a")
	return &fakeConfigRepo{
		model: domain.Model{Name: "demo", Status: domain.ModelStatusActive},
		contracts: map[domain.Address]domain.Contract{
			addr: {Address: addr, ABIDir: "pools", ABIFile: "uniswap_v2.json"},
		},
		tracked: map[domain.Address]struct{}{addr: {}},
		tokens:  map[domain.Address]domain.Token{addr: {Address: addr, Decimals: 18}},
		sources: []domain.Source{{ID: 1, Name: "primary", Path: "blocks/", Format: "%012d.json"}},
	}
}

func TestServiceLoadSuccess(t *testing.T) {
	svc := NewService(validRepo())
	snap, err := svc.Load("demo")
	require.NoError(t, err)
	assert.Equal(t, "demo", snap.Model.Name)
	assert.Len(t, snap.ContractsByAddr, 1)
	assert.Len(t, snap.TrackedTokens, 1)
	assert.Len(t, snap.Sources, 1)
}

func TestServiceLoadInactiveModel(t *testing.T) {
	r := validRepo()
	r.model.Status = domain.ModelStatusInactive
	_, err := NewService(r).Load("demo")
	require.Error(t, err)
	var ci *apperr.ConfigInvalid
	require.ErrorAs(t, err, &ci)
}

func TestServiceLoadContractMissingABI(t *testing.T) {
	r := validRepo()
	for addr, c := range r.contracts {
		c.ABIFile = ""
		r.contracts[addr] = c
	}
	_, err := NewService(r).Load("demo")
	require.Error(t, err)
}

func TestServiceLoadTrackedTokenMissingGlobalRow(t *testing.T) {
	r := validRepo()
	missing := domain.NewAddress("0xbbb0000000000000000000000000000000000b")
	r.tracked[missing] = struct{}{}
	_, err := NewService(r).Load("demo")
	require.Error(t, err)
}
