package config

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/evotools/contestd/common"
	"github.com/evotools/contestd/common/types"
	"github.com/evotools/contestd/platform"
)

const DefaultConfigFileName = "contestd.config.json"

type Config struct {
	DataDir  string `json:"dataDir"`
	Network  string `json:"network"`
	LogLevel string `json:"logLevel"`

	Contest   Contest   `json:"contest"`
	Scheduler Scheduler `json:"scheduler"`
	Wallet    Wallet    `json:"wallet"`
}

// Contest locates the contested index and tunes the refresh pipeline.
type Contest struct {
	ContractID     string `json:"contractId"`
	DocumentType   string `json:"documentType"`
	IndexName      string `json:"indexName"`
	PartitionValue string `json:"partitionValue"`

	// PageSize is the paging limit of the contested-resource query.
	PageSize int `json:"pageSize"`
	// MaxRetries caps transient-error retries against one cursor.
	MaxRetries int `json:"maxRetries"`
	// FetchConcurrency bounds in-flight detail fetches.
	FetchConcurrency int `json:"fetchConcurrency"`
}

func (c Contest) Coordinates() (platform.ContestCoordinates, error) {
	contractID, err := types.HexToIdentifier(c.ContractID)
	if err != nil {
		return platform.ContestCoordinates{}, errors.Wrap(err, "contest contract id")
	}
	return platform.ContestCoordinates{
		ContractID:     contractID,
		DocumentType:   c.DocumentType,
		IndexName:      c.IndexName,
		PartitionValue: c.PartitionValue,
	}, nil
}

// Scheduler holds the cron specs of the driving loop.
type Scheduler struct {
	RefreshSpec string `json:"refreshSpec"`
	ExecuteSpec string `json:"executeSpec"`
}

type Wallet struct {
	Mnemonic string `json:"mnemonic"`
	// VotingIdentities lists the hex ids holding delegated voting
	// keys.
	VotingIdentities []string `json:"votingIdentities"`
}

// Load reads the JSON config file when present, applies .env /
// environment overrides and fills defaults. A missing file is not an
// error; the defaults describe a usable testnet setup.
func Load(path string) (*Config, error) {
	// .env is optional.
	_ = godotenv.Load()

	cfg := new(Config)
	if path == "" {
		path = DefaultConfigFileName
	}
	if _, err := os.Stat(path); err == nil {
		text, err := ioutil.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
		if err := json.Unmarshal(text, cfg); err != nil {
			return nil, errors.Wrap(err, "unmarshal config file")
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	if v := os.Getenv("CONTESTD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("CONTESTD_NETWORK"); v != "" {
		cfg.Network = v
	}
	if v := os.Getenv("CONTESTD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CONTESTD_MNEMONIC"); v != "" {
		cfg.Wallet.Mnemonic = v
	}
	if v := os.Getenv("CONTESTD_FETCH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Contest.FetchConcurrency = n
		}
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.DataDir == "" {
		cfg.DataDir = common.DefaultDataDir()
	}
	if cfg.Network == "" {
		cfg.Network = "testnet"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Contest.DocumentType == "" {
		cfg.Contest.DocumentType = "domain"
	}
	if cfg.Contest.IndexName == "" {
		cfg.Contest.IndexName = "parentNameAndLabel"
	}
	if cfg.Contest.PartitionValue == "" {
		cfg.Contest.PartitionValue = "dash"
	}
	if cfg.Contest.PageSize == 0 {
		cfg.Contest.PageSize = 100
	}
	if cfg.Contest.MaxRetries == 0 {
		cfg.Contest.MaxRetries = 3
	}
	if cfg.Contest.FetchConcurrency == 0 {
		cfg.Contest.FetchConcurrency = 24
	}
	if cfg.Scheduler.RefreshSpec == "" {
		cfg.Scheduler.RefreshSpec = "@every 5m"
	}
	if cfg.Scheduler.ExecuteSpec == "" {
		cfg.Scheduler.ExecuteSpec = "@every 1m"
	}
}
