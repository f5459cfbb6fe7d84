package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"

	"github.com/flashbots/sbt-deploy/deployer"
	"github.com/flashbots/sbt-deploy/framework"
	"github.com/flashbots/sbt-deploy/internal/logging"
)

var (
	errDeployFailed      = errors.New("deploy failed")
	errMissingPrivateKey = errors.New("missing private key, set PRIVATE_KEY or --private-key")
	errChainIDMismatch   = errors.New("chain id mismatch")
)

// chain is a connected node plus the chain id transactions are signed for.
type chain struct {
	backend framework.Backend
	chainID uint64
	close   func()
}

type connectFunc func(ctx context.Context, log *logrus.Entry, cfg *Config, from common.Address) (*chain, error)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr, connectRPC))
}

func run(args []string, stdout, stderr io.Writer, connect connectFunc) int {
	if err := newApp(stdout, stderr, connect).Run(args); err != nil {
		if !errors.Is(err, errDeployFailed) {
			_, _ = fmt.Fprintf(stderr, "Application failed: %v\n", err)
		}
		return 1
	}
	return 0
}

func newApp(stdout, stderr io.Writer, connect connectFunc) *cli.App {
	app := cli.NewApp()
	app.Name = "sbt-deploy"
	app.Usage = "Deploys the SoulBoundToken contract and prints its explorer address"
	app.Flags = newFlags()
	app.Writer = stdout
	app.ErrWriter = stderr
	app.Action = func(c *cli.Context) error {
		cfg, err := NewConfig(c)
		if err != nil {
			return err
		}
		log, err := logging.New(cfg.LogLevel, stdout, stderr)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}
		report, err := deploy(c.Context, log, cfg, connect)
		if err != nil {
			log.WithError(err).Error("Soul Bound Token deploy failed")
			return errDeployFailed
		}
		if cfg.Report == "" {
			return nil
		}
		// The contract is live at this point; only the report is missing.
		if err := deployer.WriteReport(cfg.Report, report); err != nil {
			log.WithError(err).WithField("address", report.Address).Error("deployment report not written")
			return errDeployFailed
		}
		log.WithField("path", cfg.Report).Debug("wrote deployment report")
		return nil
	}
	return app
}

// deploy runs the deployment and returns its report. Signer and node setup
// happen inside factory resolution, after the runner has announced the start.
func deploy(ctx context.Context, log *logrus.Entry, cfg *Config, connect connectFunc) (deployer.Report, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	r := &resolver{log: log, cfg: cfg, connect: connect}
	defer r.close()

	res, err := deployer.NewRunner(log, r).Run(ctx, cfg.Params())
	if err != nil {
		return deployer.Report{}, err
	}
	return deployer.NewReport(res, r.chain.chainID), nil
}

func connectRPC(ctx context.Context, log *logrus.Entry, cfg *Config, from common.Address) (*chain, error) {
	state, err := framework.Preflight(ctx, cfg.RPCURL, from)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"deployer": from.Hex(),
		"chain_id": state.ChainID,
		"balance":  state.Balance,
		"nonce":    state.Nonce,
	}).Debug("deployer account")
	if state.Balance.Sign() == 0 {
		log.WithField("deployer", from.Hex()).Debug("deployer account has no balance")
	}

	chainID := cfg.ChainID
	if chainID == 0 {
		chainID = state.ChainID
	} else if chainID != state.ChainID {
		return nil, fmt.Errorf("%w: configured %d, node reports %d", errChainIDMismatch, chainID, state.ChainID)
	}

	client, err := framework.Dial(ctx, cfg.RPCURL)
	if err != nil {
		return nil, err
	}
	return &chain{
		backend: client,
		chainID: chainID,
		close:   client.Close,
	}, nil
}

// resolver adapts the framework to the runner's collaborator interfaces. It
// loads the signing key and connects on first use.
type resolver struct {
	log     *logrus.Entry
	cfg     *Config
	connect connectFunc

	chain *chain
}

func (r *resolver) ContractFactory(ctx context.Context, name string) (deployer.Factory, error) {
	if r.cfg.PrivateKey == "" {
		return nil, errMissingPrivateKey
	}
	key, err := framework.NewPrivKeyFromHex(r.cfg.PrivateKey)
	if err != nil {
		return nil, err
	}

	ch, err := r.connect(ctx, r.log, r.cfg, key.Address())
	if err != nil {
		return nil, err
	}
	r.chain = ch

	opts := append(r.cfg.FrameworkOptions(), framework.WithLogger(r.log))
	fr := framework.New(ch.backend, key, new(big.Int).SetUint64(ch.chainID), opts...)

	f, err := fr.ContractFactory(name)
	if err != nil {
		return nil, err
	}
	return factory{f}, nil
}

func (r *resolver) close() {
	if r.chain != nil {
		r.chain.close()
	}
}

type factory struct {
	*framework.ContractFactory
}

func (f factory) Deploy(ctx context.Context, args ...interface{}) (deployer.Deployment, error) {
	c, err := f.ContractFactory.Deploy(ctx, args...)
	if err != nil {
		return nil, err
	}
	return c, nil
}
