// Package deployer deploys the Soul Bound Token contract and reports where it
// landed.
package deployer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

const (
	ContractName       = "SoulBoundToken"
	ExplorerAddressURL = "https://etherscan.io/address/"
)

// Params are the constructor arguments, passed through as given.
type Params struct {
	Name    string
	Symbol  string
	BaseURI string
}

// Resolver looks up a deployable contract by name.
type Resolver interface {
	ContractFactory(ctx context.Context, name string) (Factory, error)
}

type Factory interface {
	Deploy(ctx context.Context, args ...interface{}) (Deployment, error)
}

// Deployment is a submitted contract creation. Deployed blocks until it is
// confirmed on chain.
type Deployment interface {
	TxHash() common.Hash
	Deployed(ctx context.Context) (common.Address, error)
}

type Result struct {
	Address common.Address
	TxHash  common.Hash
	URL     string
}

func ExplorerURL(addr common.Address) string {
	return ExplorerAddressURL + addr.Hex()
}

type Runner struct {
	log      *logrus.Entry
	resolver Resolver
}

func NewRunner(log *logrus.Entry, resolver Resolver) *Runner {
	return &Runner{
		log:      log,
		resolver: resolver,
	}
}

// Run resolves the contract factory, deploys with p and waits for
// confirmation. No retries; a submitted deployment is never rolled back.
func (r *Runner) Run(ctx context.Context, p Params) (*Result, error) {
	r.log.Info("Starting deploy...")

	factory, err := r.resolver.ContractFactory(ctx, ContractName)
	if err != nil {
		return nil, &Error{Stage: StageResolve, Err: err}
	}

	deployment, err := factory.Deploy(ctx, p.Name, p.Symbol, p.BaseURI)
	if err != nil {
		return nil, &Error{Stage: StageDeploy, Err: err}
	}
	r.log.WithField("tx", deployment.TxHash().Hex()).Debug("waiting for deployment confirmation")

	addr, err := deployment.Deployed(ctx)
	if err != nil {
		return nil, &Error{Stage: StageConfirm, Err: err}
	}

	res := &Result{
		Address: addr,
		TxHash:  deployment.TxHash(),
		URL:     ExplorerURL(addr),
	}
	r.log.Infof("Soul Bound Token deployed to: %s", res.URL)
	return res, nil
}
