package config

import (
	"fmt"

	"github.com/quick-xyz/indexer-sub000/internal/apperr"
	"github.com/quick-xyz/indexer-sub000/internal/db/shared"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
)

// ConfigRepo is the narrow capability ConfigService needs from the
// shared DB.
type ConfigRepo interface {
	GetModel(name string) (domain.Model, error)
	ContractsForModel(modelName string) (map[domain.Address]domain.Contract, error)
	TrackedTokensForModel(modelName string) (map[domain.Address]struct{}, error)
	GetToken(addr domain.Address) (domain.Token, error)
	SourcesForModel(modelName string) ([]domain.Source, error)
}

var _ ConfigRepo = (*shared.ConfigRepository)(nil)

// Service loads and validates a model's full configuration snapshot.
type Service struct {
	repo ConfigRepo
}

// NewService builds a ConfigService over repo.
func NewService(repo ConfigRepo) *Service {
	return &Service{repo: repo}
}

// Load returns the immutable Snapshot for modelName, or ConfigInvalid if
// the model is missing/inactive, a contract lacks an ABI, or a tracked
// token has no global Token row.
func (s *Service) Load(modelName string) (*domain.Snapshot, error) {
	model, err := s.repo.GetModel(modelName)
	if err != nil {
		return nil, &apperr.ConfigInvalid{Reason: fmt.Sprintf("model %q not found: %v", modelName, err)}
	}
	if model.Status != domain.ModelStatusActive {
		return nil, &apperr.ConfigInvalid{Reason: fmt.Sprintf("model %q is not active (status=%s)", modelName, model.Status)}
	}

	contracts, err := s.repo.ContractsForModel(modelName)
	if err != nil {
		return nil, &apperr.ConfigInvalid{Reason: fmt.Sprintf("loading contracts: %v", err)}
	}
	for addr, c := range contracts {
		if c.ABIDir == "" || c.ABIFile == "" {
			return nil, &apperr.ConfigInvalid{Reason: fmt.Sprintf("contract %s has no ABI configured", addr)}
		}
	}

	tracked, err := s.repo.TrackedTokensForModel(modelName)
	if err != nil {
		return nil, &apperr.ConfigInvalid{Reason: fmt.Sprintf("loading tracked tokens: %v", err)}
	}
	for addr := range tracked {
		if _, err := s.repo.GetToken(addr); err != nil {
			return nil, &apperr.ConfigInvalid{Reason: fmt.Sprintf("tracked token %s has no global Token row: %v", addr, err)}
		}
	}

	sources, err := s.repo.SourcesForModel(modelName)
	if err != nil {
		return nil, &apperr.ConfigInvalid{Reason: fmt.Sprintf("loading sources: %v", err)}
	}

	return &domain.Snapshot{
		Model:           model,
		ContractsByAddr: contracts,
		TrackedTokens:   tracked,
		Sources:         sources,
	}, nil
}
