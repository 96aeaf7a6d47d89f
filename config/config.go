package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/egaotan/serum-saver/program"
	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
)

var (
	LogPath    = "./logs/"
	BackendLog = "backend"
	ClientLog  = "client"
	StoreLog   = "store"
	AppLog     = "app"
)

const (
	EnvKey     = "SAVER_KEY"
	EnvDBUrl   = "SAVER_DB_URL"
	EnvDingUrl = "SAVER_DING_URL"
)

type Node struct {
	Rpc    string `json:"rpc"`
	Ws     string `json:"ws"`
	Usable bool   `json:"usable"`
}

type Market struct {
	Name    string           `json:"name"`
	Market  solana.PublicKey `json:"market"`
	Binding solana.PublicKey `json:"binding"`
}

type Token struct {
	Symbol  string           `json:"symbol"`
	Name    string           `json:"name"`
	Mint    solana.PublicKey `json:"mint"`
	Decimal int32            `json:"decimal"`
}

type Config struct {
	Nodes        []*Node          `json:"nodes"`
	SaverProgram solana.PublicKey `json:"saver_program"`
	DexProgram   solana.PublicKey `json:"dex_program"`
	RebateMint   solana.PublicKey `json:"rebate_mint"`
	Key          string           `json:"key"`
	Vault        solana.PublicKey `json:"vault"`
	Markets      []*Market        `json:"markets"`
	Tokens       []*Token         `json:"tokens"`
	TokenList    string           `json:"token_list"`
	Listen       string           `json:"listen"`
	DBDriver     string           `json:"db_driver"`
	DBUrl        string           `json:"db_url"`
	DingUrl      string           `json:"ding-url"`
	LogPath      string           `json:"log_path"`
}

// Load reads a json config file. Values from the environment (and from a
// .env file in the working directory, if present) override secrets.
func Load(file string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read config(%s): %w", file, err)
	}
	cfg := &Config{}
	if err := json.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("parse config(%s): %w", file, err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	if key := os.Getenv(EnvKey); key != "" {
		cfg.Key = key
	}
	if url := os.Getenv(EnvDBUrl); url != "" {
		cfg.DBUrl = url
	}
	if url := os.Getenv(EnvDingUrl); url != "" {
		cfg.DingUrl = url
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.SaverProgram.IsZero() {
		cfg.SaverProgram = program.Saver
	}
	if cfg.DexProgram.IsZero() {
		cfg.DexProgram = program.SerumV3
	}
	if cfg.RebateMint.IsZero() {
		cfg.RebateMint = program.SRM
	}
	if cfg.LogPath == "" {
		cfg.LogPath = LogPath
	}
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.DBDriver == "" {
		cfg.DBDriver = "sqlite"
	}
}

func (cfg *Config) Validate() error {
	usable := 0
	for _, node := range cfg.Nodes {
		if node.Usable {
			usable++
		}
	}
	if usable == 0 {
		return fmt.Errorf("config: no usable node")
	}
	if cfg.Key == "" {
		return fmt.Errorf("config: wallet key is empty, set key or %s", EnvKey)
	}
	for _, market := range cfg.Markets {
		if market.Market.IsZero() {
			return fmt.Errorf("config: market(%s) address is empty", market.Name)
		}
	}
	return nil
}

// Node returns the first usable rpc node.
func (cfg *Config) Node() *Node {
	for _, node := range cfg.Nodes {
		if node.Usable {
			return node
		}
	}
	return nil
}
