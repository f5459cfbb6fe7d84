package framework

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"
	"github.com/lmittmann/w3/module/eth"
)

// AccountState is the deployer's view of the chain before anything is sent.
type AccountState struct {
	ChainID uint64
	Balance *big.Int
	Nonce   uint64
}

// Preflight fetches the chain id and the deployer's balance and nonce in a
// single batched request.
func Preflight(ctx context.Context, rpcURL string, addr common.Address) (*AccountState, error) {
	client, err := w3.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	defer client.Close()

	var (
		chainID uint64
		balance big.Int
		nonce   uint64
	)
	if err := client.CallCtx(ctx,
		eth.ChainID().Returns(&chainID),
		eth.Balance(addr, nil).Returns(&balance),
		eth.Nonce(addr, nil).Returns(&nonce),
	); err != nil {
		return nil, fmt.Errorf("preflight %s: %w", addr.Hex(), err)
	}

	return &AccountState{
		ChainID: chainID,
		Balance: &balance,
		Nonce:   nonce,
	}, nil
}
