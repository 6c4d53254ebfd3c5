package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

const (
	defaultRPCTimeout         = 30 * time.Second
	defaultBlockConfirmations = 5
	defaultPollInterval       = 10 * time.Second
	defaultFaultCooldown      = 15 * time.Second
	defaultRetryAttempts      = 5
	defaultRetryBaseDelay     = 2 * time.Second
	defaultRetryMaxDelay      = 30 * time.Second
	defaultConfirmTimeout     = 60 * time.Second
	defaultCommitment         = "confirmed"
	defaultPublisherInterval  = 5 * time.Second
	defaultPresenterHost      = ":9300"
	defaultMaxOpenConns       = 10
	defaultMaxIdleConns       = 3
)

var ErrInvalidConfig = errors.New("invalid config")

type RPCConfig struct {
	Host    string        `yaml:"host"`
	Timeout time.Duration `yaml:"timeout"`
}

type SourceConfig struct {
	RPC                   *RPCConfig     `yaml:"rpc"`
	ChainID               string         `yaml:"chain_id"`
	EmitterAddress        common.Address `yaml:"emitter_address"`
	StartBlock            *uint64        `yaml:"start_block"`
	RequiredConfirmations *uint64        `yaml:"required_block_confirmations"`
	BlockConfirmations    uint64         `yaml:"-"`
	MaxBlockRangeSize     uint64         `yaml:"max_block_range_size"`
	SafeLogsRequest       bool           `yaml:"safe_logs_request"`
}

type DestinationConfig struct {
	RPC            *RPCConfig        `yaml:"rpc"`
	RawProgramID   string            `yaml:"program_id"`
	ProgramID      solana.PublicKey  `yaml:"-"`
	RawSignerKey   string            `yaml:"signer_key"`
	SignerKey      solana.PrivateKey `yaml:"-"`
	Commitment     string            `yaml:"commitment"`
	ConfirmTimeout time.Duration     `yaml:"confirm_timeout"`
}

type RetryConfig struct {
	MaxAttempts uint          `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

type RelayConfig struct {
	ID            string        `yaml:"id"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	FaultCooldown time.Duration `yaml:"fault_cooldown"`
	Retry         *RetryConfig  `yaml:"retry"`
}

type DBConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type PublisherConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type PresenterConfig struct {
	Host string `yaml:"host"`
}

type Config struct {
	Source      *SourceConfig      `yaml:"source"`
	Destination *DestinationConfig `yaml:"destination"`
	Relay       *RelayConfig       `yaml:"relay"`
	DBConfig    *DBConfig          `yaml:"postgres"`
	Publisher   *PublisherConfig   `yaml:"publisher"`
	Presenter   *PresenterConfig   `yaml:"presenter"`
	LogLevel    logrus.Level       `yaml:"log_level"`
}

func ReadConfigFromFile(path string) (*Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't access config file: %w", err)
	}
	return ReadConfigWithEnv(blob)
}

func ReadConfigWithEnv(blob []byte) (*Config, error) {
	return ReadConfig([]byte(os.ExpandEnv(string(blob))))
}

func ReadConfig(blob []byte) (*Config, error) {
	cfg := &Config{LogLevel: logrus.InfoLevel}
	if err := parseYaml(cfg, blob); err != nil {
		return nil, err
	}
	if err := cfg.init(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) init() error {
	if cfg.Source == nil || cfg.Source.RPC == nil || cfg.Source.RPC.Host == "" {
		return fmt.Errorf("source rpc host is required: %w", ErrInvalidConfig)
	}
	if cfg.Source.EmitterAddress == (common.Address{}) {
		return fmt.Errorf("source emitter_address is required: %w", ErrInvalidConfig)
	}
	if cfg.Destination == nil || cfg.Destination.RPC == nil || cfg.Destination.RPC.Host == "" {
		return fmt.Errorf("destination rpc host is required: %w", ErrInvalidConfig)
	}
	if cfg.DBConfig == nil || cfg.DBConfig.URL == "" {
		return fmt.Errorf("postgres url is required: %w", ErrInvalidConfig)
	}

	src := cfg.Source
	if src.RPC.Timeout == 0 {
		src.RPC.Timeout = defaultRPCTimeout
	}
	src.BlockConfirmations = defaultBlockConfirmations
	if src.RequiredConfirmations != nil {
		src.BlockConfirmations = *src.RequiredConfirmations
	}

	dst := cfg.Destination
	if dst.RPC.Timeout == 0 {
		dst.RPC.Timeout = defaultRPCTimeout
	}
	var err error
	if dst.RawProgramID == "" {
		return fmt.Errorf("destination program_id is required: %w", ErrInvalidConfig)
	}
	dst.ProgramID, err = solana.PublicKeyFromBase58(dst.RawProgramID)
	if err != nil {
		return fmt.Errorf("can't parse destination program_id: %w", err)
	}
	if dst.RawSignerKey == "" {
		return fmt.Errorf("destination signer_key is required: %w", ErrInvalidConfig)
	}
	dst.SignerKey, err = ParsePrivateKey(dst.RawSignerKey)
	if err != nil {
		return err
	}
	if dst.Commitment == "" {
		dst.Commitment = defaultCommitment
	}
	switch dst.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("unknown destination commitment %q: %w", dst.Commitment, ErrInvalidConfig)
	}
	if dst.ConfirmTimeout == 0 {
		dst.ConfirmTimeout = defaultConfirmTimeout
	}

	if cfg.Relay == nil {
		cfg.Relay = new(RelayConfig)
	}
	if cfg.Relay.PollInterval == 0 {
		cfg.Relay.PollInterval = defaultPollInterval
	}
	if cfg.Relay.FaultCooldown == 0 {
		cfg.Relay.FaultCooldown = defaultFaultCooldown
	}
	if cfg.Relay.Retry == nil {
		cfg.Relay.Retry = new(RetryConfig)
	}
	if cfg.Relay.Retry.MaxAttempts == 0 {
		cfg.Relay.Retry.MaxAttempts = defaultRetryAttempts
	}
	if cfg.Relay.Retry.BaseDelay == 0 {
		cfg.Relay.Retry.BaseDelay = defaultRetryBaseDelay
	}
	if cfg.Relay.Retry.MaxDelay == 0 {
		cfg.Relay.Retry.MaxDelay = defaultRetryMaxDelay
	}
	if cfg.Relay.Retry.MaxDelay < cfg.Relay.Retry.BaseDelay {
		return fmt.Errorf("retry max_delay is less than base_delay: %w", ErrInvalidConfig)
	}

	if cfg.DBConfig.MaxOpenConns == 0 {
		cfg.DBConfig.MaxOpenConns = defaultMaxOpenConns
	}
	if cfg.DBConfig.MaxIdleConns == 0 {
		cfg.DBConfig.MaxIdleConns = defaultMaxIdleConns
	}
	if cfg.Publisher == nil {
		cfg.Publisher = new(PublisherConfig)
	}
	if cfg.Publisher.Interval == 0 {
		cfg.Publisher.Interval = defaultPublisherInterval
	}
	if cfg.Presenter == nil {
		cfg.Presenter = new(PresenterConfig)
	}
	if cfg.Presenter.Host == "" {
		cfg.Presenter.Host = defaultPresenterHost
	}
	return nil
}

// ResolveRelayID fills in the default relay id "<chain_id>:<emitter>" from the
// chain id reported by the source node, so it does not depend on whether
// source.chain_id is configured. An explicit relay id is kept as is.
func (cfg *Config) ResolveRelayID(chainID string) string {
	if cfg.Relay.ID == "" {
		cfg.Relay.ID = fmt.Sprintf("%s:%s", chainID, cfg.Source.EmitterAddress)
	}
	return cfg.Relay.ID
}

// ParsePrivateKey accepts either a JSON array of 64 bytes (solana-keygen
// format) or a base58 encoded secret key.
func ParsePrivateKey(raw string) (solana.PrivateKey, error) {
	raw = strings.TrimSpace(raw)
	var key solana.PrivateKey
	if strings.HasPrefix(raw, "[") {
		var arr []byte
		var ints []int
		if err := json.Unmarshal([]byte(raw), &ints); err != nil {
			return nil, fmt.Errorf("can't parse signer key as JSON byte array: %w", err)
		}
		arr = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("signer key byte %d out of range: %w", i, ErrInvalidConfig)
			}
			arr[i] = byte(v)
		}
		key = arr
	} else {
		var err error
		key, err = solana.PrivateKeyFromBase58(raw)
		if err != nil {
			return nil, fmt.Errorf("can't parse signer key as base58: %w", err)
		}
	}
	if len(key) != 64 {
		return nil, fmt.Errorf("signer key must be 64 bytes, got %d: %w", len(key), ErrInvalidConfig)
	}
	return key, nil
}
