package framework

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

var errNilChainID = errors.New("chain id is required to sign transactions")

// Backend is what the framework needs from a node: sending transactions and
// watching for their receipts. Both *ethclient.Client and the simulated
// backend satisfy it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

type Option func(*Framework)

func WithArtifacts(dir string) Option {
	return func(f *Framework) { f.artifacts = NewArtifactStore(dir) }
}

func WithGasFeeCap(v *big.Int) Option {
	return func(f *Framework) { f.gasFeeCap = v }
}

func WithGasTipCap(v *big.Int) Option {
	return func(f *Framework) { f.gasTipCap = v }
}

func WithGasLimit(v uint64) Option {
	return func(f *Framework) { f.gasLimit = v }
}

func WithLogger(log *logrus.Entry) Option {
	return func(f *Framework) { f.log = log }
}

type Framework struct {
	backend   Backend
	key       *PrivKey
	chainID   *big.Int
	artifacts *ArtifactStore
	log       *logrus.Entry

	gasFeeCap *big.Int
	gasTipCap *big.Int
	gasLimit  uint64
}

func New(backend Backend, key *PrivKey, chainID *big.Int, opts ...Option) *Framework {
	f := &Framework{
		backend:   backend,
		key:       key,
		chainID:   chainID,
		artifacts: NewArtifactStore(DefaultArtifactsDir),
		log:       logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Dial connects to an Ethereum JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return client, nil
}

// ContractFactory resolves the artifact for name and returns a factory able to
// deploy it from the framework's key.
func (f *Framework) ContractFactory(name string) (*ContractFactory, error) {
	artifact, err := f.artifacts.Find(name)
	if err != nil {
		return nil, err
	}
	f.log.WithFields(logrus.Fields{
		"contract": artifact.FullyQualifiedName(),
		"size":     len(artifact.Code),
	}).Debug("resolved contract artifact")
	return &ContractFactory{fr: f, artifact: artifact}, nil
}

func (f *Framework) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if f.chainID == nil {
		return nil, errNilChainID
	}
	opts, err := bind.NewKeyedTransactorWithChainID(f.key.Priv, f.chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	opts.GasFeeCap = f.gasFeeCap
	opts.GasTipCap = f.gasTipCap
	opts.GasLimit = f.gasLimit
	return opts, nil
}

type ContractFactory struct {
	fr       *Framework
	artifact *Artifact
}

func (c *ContractFactory) Artifact() *Artifact {
	return c.artifact
}

// Deploy packs args against the constructor and submits the creation
// transaction. It returns once the node accepted the transaction.
func (c *ContractFactory) Deploy(ctx context.Context, args ...interface{}) (*Contract, error) {
	opts, err := c.fr.transactOpts(ctx)
	if err != nil {
		return nil, err
	}

	addr, tx, _, err := bind.DeployContract(opts, *c.artifact.Abi, common.CopyBytes(c.artifact.Code), c.fr.backend, args...)
	if err != nil {
		return nil, fmt.Errorf("deploy %s: %w", c.artifact.ContractName, err)
	}

	c.fr.log.WithFields(logrus.Fields{
		"contract": c.artifact.ContractName,
		"tx":       tx.Hash().Hex(),
		"address":  addr.Hex(),
		"nonce":    tx.Nonce(),
	}).Debug("deployment transaction sent")

	return &Contract{
		addr:     addr,
		tx:       tx,
		backend:  c.fr.backend,
		artifact: c.artifact,
	}, nil
}

// Contract is a handle on a submitted deployment. Its address is only
// meaningful once Deployed has returned without error.
type Contract struct {
	addr     common.Address
	tx       *types.Transaction
	backend  Backend
	artifact *Artifact
}

func (c *Contract) TxHash() common.Hash {
	return c.tx.Hash()
}

// Deployed blocks until the creation transaction is mined and code is
// present at the contract address.
func (c *Contract) Deployed(ctx context.Context) (common.Address, error) {
	addr, err := bind.WaitDeployed(ctx, c.backend, c.tx)
	if err != nil {
		return common.Address{}, fmt.Errorf("wait for %s deployment %s: %w", c.artifact.ContractName, c.tx.Hash().Hex(), err)
	}
	return addr, nil
}
