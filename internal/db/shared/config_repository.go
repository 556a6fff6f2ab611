package shared

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quick-xyz/indexer-sub000/internal/domain"
)

// ConfigRepository reads the model/contract/token/source rows that make
// up a ConfigService snapshot. Read-only from the pipeline's
// point of view; rows are written by the out-of-scope admin loader.
type ConfigRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewConfigRepository builds a ConfigRepository over the shared DB handle.
func NewConfigRepository(db *sql.DB, log zerolog.Logger) *ConfigRepository {
	return &ConfigRepository{db: db, log: log.With().Str("repo", "config").Logger()}
}

// GetModel returns the Model row for name, or sql.ErrNoRows if absent.
func (r *ConfigRepository) GetModel(name string) (domain.Model, error) {
	var m domain.Model
	row := r.db.QueryRow(`SELECT name, version, model_db_name, model_token_address, status FROM models WHERE name = ?`, name)
	var status string
	if err := row.Scan(&m.Name, &m.Version, &m.ModelDBName, &m.ModelTokenAddr, &status); err != nil {
		return m, err
	}
	m.Status = domain.ModelStatus(status)
	return m, nil
}

// ContractsForModel returns every contract linked to model, keyed by address.
func (r *ConfigRepository) ContractsForModel(modelName string) (map[domain.Address]domain.Contract, error) {
	rows, err := r.db.Query(`
		SELECT c.address, c.name, c.project, c.type, c.abi_dir, c.abi_file,
		       c.transformer_name, c.transformer_config, c.base_token_address
		FROM contracts c
		JOIN model_contracts mc ON mc.contract_address = c.address
		WHERE mc.model_name = ?`, modelName)
	if err != nil {
		return nil, fmt.Errorf("query contracts for model %s: %w", modelName, err)
	}
	defer rows.Close()

	out := make(map[domain.Address]domain.Contract)
	for rows.Next() {
		var c domain.Contract
		var transformerConfigJSON string
		var baseToken sql.NullString
		if err := rows.Scan(&c.Address, &c.Name, &c.Project, &c.Type, &c.ABIDir, &c.ABIFile,
			&c.TransformerName, &transformerConfigJSON, &baseToken); err != nil {
			return nil, fmt.Errorf("scan contract: %w", err)
		}
		if transformerConfigJSON != "" {
			if err := json.Unmarshal([]byte(transformerConfigJSON), &c.TransformerConfig); err != nil {
				return nil, fmt.Errorf("unmarshal transformer_config for %s: %w", c.Address, err)
			}
		}
		if baseToken.Valid {
			addr := domain.NewAddress(baseToken.String)
			c.BaseTokenAddress = &addr
		}
		out[c.Address] = c
	}
	return out, rows.Err()
}

// TrackedTokensForModel returns the set of token addresses of interest.
func (r *ConfigRepository) TrackedTokensForModel(modelName string) (map[domain.Address]struct{}, error) {
	rows, err := r.db.Query(`SELECT token_address FROM model_tokens WHERE model_name = ?`, modelName)
	if err != nil {
		return nil, fmt.Errorf("query model tokens: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.Address]struct{})
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan model token: %w", err)
		}
		out[domain.NewAddress(addr)] = struct{}{}
	}
	return out, rows.Err()
}

// GetToken returns the global Token row for addr.
func (r *ConfigRepository) GetToken(addr domain.Address) (domain.Token, error) {
	var t domain.Token
	row := r.db.QueryRow(`SELECT address, type, symbol, name, decimals, project FROM tokens WHERE address = ?`, string(addr))
	if err := row.Scan(&t.Address, &t.Type, &t.Symbol, &t.Name, &t.Decimals, &t.Project); err != nil {
		return t, err
	}
	return t, nil
}

// ProjectForPool returns the project label of the contract at addr, the
// grouping key calculate_asset_volume_by_protocol aggregates by (spec
// §4.10).
func (r *ConfigRepository) ProjectForPool(addr domain.Address) (string, error) {
	var project string
	err := r.db.QueryRow(`SELECT project FROM contracts WHERE address = ?`, string(addr)).Scan(&project)
	if err != nil {
		return "", err
	}
	return project, nil
}

// SourcesForModel returns the ordered sources for modelName.
func (r *ConfigRepository) SourcesForModel(modelName string) ([]domain.Source, error) {
	rows, err := r.db.Query(`SELECT id, name, path, format FROM sources WHERE model_name = ? ORDER BY id`, modelName)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		var s domain.Source
		if err := rows.Scan(&s.ID, &s.Name, &s.Path, &s.Format); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
