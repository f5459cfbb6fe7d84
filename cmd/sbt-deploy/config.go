package main

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/holiman/uint256"
	cli "github.com/urfave/cli/v2"

	"github.com/flashbots/sbt-deploy/deployer"
	"github.com/flashbots/sbt-deploy/framework"
)

const (
	DefaultRPCURL   = "http://127.0.0.1:8545"
	DefaultLogLevel = "info"
)

const (
	NameFlagName       = "name"
	SymbolFlagName     = "symbol"
	BaseURIFlagName    = "base-uri"
	RPCURLFlagName     = "rpc-url"
	PrivateKeyFlagName = "private-key"
	ChainIDFlagName    = "chain-id"
	ArtifactsFlagName  = "artifacts"
	GasFeeCapFlagName  = "gas-fee-cap"
	GasTipCapFlagName  = "gas-tip-cap"
	GasLimitFlagName   = "gas-limit"
	TimeoutFlagName    = "timeout"
	ReportFlagName     = "report"
	LogLevelFlagName   = "log-level"
)

// newFlags returns fresh flag definitions; urfave/cli stores env values on
// the flag itself, so each app gets its own set.
func newFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    NameFlagName,
			Usage:   "token name passed to the constructor",
			EnvVars: []string{"NAME"},
		},
		&cli.StringFlag{
			Name:    SymbolFlagName,
			Usage:   "token symbol passed to the constructor",
			EnvVars: []string{"SYMBOL"},
		},
		&cli.StringFlag{
			Name:    BaseURIFlagName,
			Usage:   "token base URI passed to the constructor",
			EnvVars: []string{"BASE_URI"},
		},
		&cli.StringFlag{
			Name:    RPCURLFlagName,
			Usage:   "JSON-RPC endpoint of the target chain",
			Value:   DefaultRPCURL,
			EnvVars: []string{"RPC_URL"},
		},
		&cli.StringFlag{
			Name:    PrivateKeyFlagName,
			Usage:   "hex private key of the deploying account",
			EnvVars: []string{"PRIVATE_KEY"},
		},
		&cli.Uint64Flag{
			Name:    ChainIDFlagName,
			Usage:   "chain id used for signing, 0 asks the node",
			EnvVars: []string{"CHAIN_ID"},
		},
		&cli.StringFlag{
			Name:    ArtifactsFlagName,
			Usage:   "Hardhat artifacts directory",
			Value:   framework.DefaultArtifactsDir,
			EnvVars: []string{"ARTIFACTS_DIR"},
		},
		&cli.StringFlag{
			Name:    GasFeeCapFlagName,
			Usage:   "EIP-1559 max fee per gas in wei, empty uses the node suggestion",
			EnvVars: []string{"GAS_FEE_CAP"},
		},
		&cli.StringFlag{
			Name:    GasTipCapFlagName,
			Usage:   "EIP-1559 max priority fee per gas in wei, empty uses the node suggestion",
			EnvVars: []string{"GAS_TIP_CAP"},
		},
		&cli.Uint64Flag{
			Name:    GasLimitFlagName,
			Usage:   "gas limit of the deployment, 0 estimates",
			EnvVars: []string{"GAS_LIMIT"},
		},
		&cli.DurationFlag{
			Name:    TimeoutFlagName,
			Usage:   "give up waiting after this long, 0 waits forever",
			EnvVars: []string{"DEPLOY_TIMEOUT"},
		},
		&cli.StringFlag{
			Name:    ReportFlagName,
			Usage:   "write a JSON deployment report to this path",
			EnvVars: []string{"DEPLOY_REPORT"},
		},
		&cli.StringFlag{
			Name:    LogLevelFlagName,
			Usage:   "trace, debug, info, warn or error",
			Value:   DefaultLogLevel,
			EnvVars: []string{"LOG_LEVEL"},
		},
	}
}

type Config struct {
	Name    string
	Symbol  string
	BaseURI string

	RPCURL     string
	PrivateKey string
	ChainID    uint64
	Artifacts  string
	GasFeeCap  *big.Int
	GasTipCap  *big.Int
	GasLimit   uint64
	Timeout    time.Duration
	Report     string
	LogLevel   string
}

func NewConfig(c *cli.Context) (*Config, error) {
	gasFeeCap, err := parseWei(c.String(GasFeeCapFlagName))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", GasFeeCapFlagName, err)
	}
	gasTipCap, err := parseWei(c.String(GasTipCapFlagName))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", GasTipCapFlagName, err)
	}

	return &Config{
		Name:       c.String(NameFlagName),
		Symbol:     c.String(SymbolFlagName),
		BaseURI:    c.String(BaseURIFlagName),
		RPCURL:     c.String(RPCURLFlagName),
		PrivateKey: c.String(PrivateKeyFlagName),
		ChainID:    c.Uint64(ChainIDFlagName),
		Artifacts:  c.String(ArtifactsFlagName),
		GasFeeCap:  gasFeeCap,
		GasTipCap:  gasTipCap,
		GasLimit:   c.Uint64(GasLimitFlagName),
		Timeout:    c.Duration(TimeoutFlagName),
		Report:     c.String(ReportFlagName),
		LogLevel:   c.String(LogLevelFlagName),
	}, nil
}

// Params returns the constructor arguments exactly as configured.
func (c *Config) Params() deployer.Params {
	return deployer.Params{
		Name:    c.Name,
		Symbol:  c.Symbol,
		BaseURI: c.BaseURI,
	}
}

func (c *Config) FrameworkOptions() []framework.Option {
	opts := []framework.Option{framework.WithArtifacts(c.Artifacts)}
	if c.GasFeeCap != nil {
		opts = append(opts, framework.WithGasFeeCap(c.GasFeeCap))
	}
	if c.GasTipCap != nil {
		opts = append(opts, framework.WithGasTipCap(c.GasTipCap))
	}
	if c.GasLimit != 0 {
		opts = append(opts, framework.WithGasLimit(c.GasLimit))
	}
	return opts
}

// parseWei reads a decimal wei amount. An empty string means unset.
func parseWei(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, err
	}
	return v.ToBig(), nil
}
