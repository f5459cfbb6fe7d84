package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind/backends"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/flashbots/sbt-deploy/deployer"
	"github.com/flashbots/sbt-deploy/framework"
	"github.com/flashbots/sbt-deploy/internal/logging"
)

const devKeyHex = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var devAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

// autoCommit mines a block after every accepted transaction.
type autoCommit struct {
	*backends.SimulatedBackend
}

func (b autoCommit) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := b.SimulatedBackend.SendTransaction(ctx, tx); err != nil {
		return err
	}
	b.Commit()
	return nil
}

// brokenCode fails the code lookup that confirms a deployment.
type brokenCode struct {
	autoCommit
	err error
}

func (b brokenCode) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return nil, b.err
}

func simulatedConnect(t *testing.T, wrap func(autoCommit) framework.Backend) connectFunc {
	t.Helper()
	sim := backends.NewSimulatedBackend(core.GenesisAlloc{
		devAddr: {Balance: new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))},
	}, 30_000_000)
	t.Cleanup(func() { _ = sim.Close() })

	return func(context.Context, *logrus.Entry, *Config, common.Address) (*chain, error) {
		return &chain{backend: wrap(autoCommit{sim}), chainID: 1337, close: func() {}}, nil
	}
}

func plain(b autoCommit) framework.Backend { return b }

type testRun struct {
	code           int
	stdout, stderr string
}

func runApp(t *testing.T, connect connectFunc, args ...string) testRun {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"sbt-deploy"}, args...), &stdout, &stderr, connect)
	return testRun{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestRun_Success(t *testing.T) {
	clearEnv(t)
	t.Setenv("NAME", "Soul")
	t.Setenv("SYMBOL", "SOUL")
	t.Setenv("BASE_URI", "ipfs://base/")
	t.Setenv("PRIVATE_KEY", devKeyHex)
	report := filepath.Join(t.TempDir(), "deployment.json")

	res := runApp(t, simulatedConnect(t, plain), "--artifacts", "testdata/artifacts", "--report", report)
	require.Equal(t, 0, res.code, res.stderr)
	require.Empty(t, res.stderr)

	addr := crypto.CreateAddress(devAddr, 0)
	require.Contains(t, res.stdout, `msg="Starting deploy..."`)
	require.Contains(t, res.stdout, "https://etherscan.io/address/"+addr.Hex())
	require.Less(t,
		strings.Index(res.stdout, "Starting deploy..."),
		strings.Index(res.stdout, "https://etherscan.io/address/"),
	)

	data, err := os.ReadFile(report)
	require.NoError(t, err)
	var got deployer.Report
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, addr.Hex(), got.Address)
	require.Equal(t, uint64(1337), got.ChainID)
	require.Equal(t, deployer.ContractName, got.Contract)
}

func TestRun_UnsetParamsStillDeploy(t *testing.T) {
	clearEnv(t)
	t.Setenv("PRIVATE_KEY", devKeyHex)

	res := runApp(t, simulatedConnect(t, plain), "--artifacts", "testdata/artifacts")
	require.Equal(t, 0, res.code, res.stderr)
	require.Contains(t, res.stdout, deployer.ExplorerAddressURL)
}

func TestRun_ResolveFailure(t *testing.T) {
	clearEnv(t)
	t.Setenv("PRIVATE_KEY", devKeyHex)

	res := runApp(t, simulatedConnect(t, plain), "--artifacts", t.TempDir())
	require.Equal(t, 1, res.code)
	require.Contains(t, res.stdout, "Starting deploy...")
	require.NotContains(t, res.stdout, deployer.ExplorerAddressURL)
	require.Contains(t, res.stderr, "level=error")
	require.Contains(t, res.stderr, framework.ErrArtifactNotFound.Error())
}

func TestRun_ConfirmFailure(t *testing.T) {
	clearEnv(t)
	t.Setenv("PRIVATE_KEY", devKeyHex)

	e2 := errors.New("E2")
	connect := simulatedConnect(t, func(b autoCommit) framework.Backend {
		return brokenCode{autoCommit: b, err: e2}
	})

	res := runApp(t, connect, "--artifacts", "testdata/artifacts")
	require.Equal(t, 1, res.code)
	require.Contains(t, res.stdout, "Starting deploy...")
	require.NotContains(t, res.stdout, deployer.ExplorerAddressURL)
	require.Contains(t, res.stderr, "E2")
}

func TestRun_SetupFailures(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		clearEnv(t)
		res := runApp(t, simulatedConnect(t, plain), "--artifacts", "testdata/artifacts")
		require.Equal(t, 1, res.code)
		require.Contains(t, res.stdout, "Starting deploy...")
		require.Contains(t, res.stderr, "missing private key")
	})
	t.Run("bad key", func(t *testing.T) {
		clearEnv(t)
		res := runApp(t, simulatedConnect(t, plain), "--private-key", "0x1234")
		require.Equal(t, 1, res.code)
		require.Contains(t, res.stdout, "Starting deploy...")
		require.Contains(t, res.stderr, "parse private key")
	})
	t.Run("connect", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PRIVATE_KEY", devKeyHex)
		connect := func(context.Context, *logrus.Entry, *Config, common.Address) (*chain, error) {
			return nil, errors.New("connection refused")
		}
		res := runApp(t, connect)
		require.Equal(t, 1, res.code)
		require.Contains(t, res.stderr, "connection refused")
		require.Contains(t, res.stdout, "Starting deploy...")
	})
	t.Run("unreachable node", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PRIVATE_KEY", devKeyHex)
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		res := runApp(t, connectRPC, "--rpc-url", srv.URL)
		require.Equal(t, 1, res.code)
		require.Equal(t, 1, strings.Count(res.stdout, "\n"), res.stdout)
		require.Contains(t, res.stdout, `msg="Starting deploy..."`)
		require.Contains(t, res.stderr, "Soul Bound Token deploy failed")
		require.Contains(t, res.stderr, "preflight")
	})
	t.Run("bad log level", func(t *testing.T) {
		clearEnv(t)
		res := runApp(t, simulatedConnect(t, plain), "--log-level", "loud")
		require.Equal(t, 1, res.code)
		require.Contains(t, res.stderr, "Application failed: invalid log level")
	})
}

func newRPCServer(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	type request struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
	}
	type response struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  string          `json:"result"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqs []request
		if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resps := make([]response, 0, len(reqs))
		for _, req := range reqs {
			resps = append(resps, response{JSONRPC: "2.0", ID: req.ID, Result: results[req.Method]})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resps)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestConnectRPC(t *testing.T) {
	srv := newRPCServer(t, map[string]string{
		"eth_chainId":             "0xaa36a7",
		"eth_getBalance":          "0x0",
		"eth_getTransactionCount": "0x0",
	})
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	entry := logrus.NewEntry(log)

	ch, err := connectRPC(context.Background(), entry, &Config{RPCURL: srv.URL}, devAddr)
	require.NoError(t, err)
	defer ch.close()
	require.Equal(t, uint64(11155111), ch.chainID)
	require.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
	require.Equal(t, "deployer account has no balance", hook.LastEntry().Message)

	ch, err = connectRPC(context.Background(), entry, &Config{RPCURL: srv.URL, ChainID: 11155111}, devAddr)
	require.NoError(t, err)
	ch.close()

	_, err = connectRPC(context.Background(), entry, &Config{RPCURL: srv.URL, ChainID: 1}, devAddr)
	require.ErrorIs(t, err, errChainIDMismatch)
}

func TestConnectRPC_QuietAtInfo(t *testing.T) {
	srv := newRPCServer(t, map[string]string{
		"eth_chainId":             "0x539",
		"eth_getBalance":          "0x0",
		"eth_getTransactionCount": "0x0",
	})
	var stdout, stderr bytes.Buffer
	log, err := logging.New("info", &stdout, &stderr)
	require.NoError(t, err)

	ch, err := connectRPC(context.Background(), log, &Config{RPCURL: srv.URL}, devAddr)
	require.NoError(t, err)
	ch.close()
	require.Empty(t, stdout.String())
	require.Empty(t, stderr.String())
}

func TestRun_ReportNotWritten(t *testing.T) {
	clearEnv(t)
	t.Setenv("PRIVATE_KEY", devKeyHex)
	report := filepath.Join(t.TempDir(), "missing", "deployment.json")

	res := runApp(t, simulatedConnect(t, plain), "--artifacts", "testdata/artifacts", "--report", report)
	require.Equal(t, 1, res.code)
	require.Contains(t, res.stdout, "https://etherscan.io/address/"+crypto.CreateAddress(devAddr, 0).Hex())
	require.Contains(t, res.stderr, "deployment report not written")
	require.Contains(t, res.stderr, crypto.CreateAddress(devAddr, 0).Hex())
	require.NotContains(t, res.stderr, "deploy failed")
}

func TestRun_TimeoutBoundsConfirmation(t *testing.T) {
	clearEnv(t)
	t.Setenv("PRIVATE_KEY", devKeyHex)
	// nothing is ever mined
	connect := simulatedConnect(t, func(b autoCommit) framework.Backend { return b.SimulatedBackend })

	start := time.Now()
	res := runApp(t, connect, "--artifacts", "testdata/artifacts", "--timeout", "100ms")
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, 1, res.code)
	require.Contains(t, res.stdout, "Starting deploy...")
	require.NotContains(t, res.stdout, deployer.ExplorerAddressURL)
	require.Contains(t, res.stderr, "confirm")
	require.Contains(t, res.stderr, context.DeadlineExceeded.Error())
}
