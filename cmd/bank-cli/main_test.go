package main

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"bankchain/core"
	"bankchain/core/state"
	"bankchain/crypto"
	"bankchain/native/bank"
	"bankchain/rpc"
	"bankchain/storage"
)

const testChainID = "bank-cli-test"

type harness struct {
	cli      *cli
	out      *bytes.Buffer
	exec     *core.Executor
	adminKey string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	admin, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	adminKey := filepath.Join(dir, "admin.keystore")
	require.NoError(t, crypto.SaveToKeystore(adminKey, admin, "pass", crypto.WithLightScrypt()))

	st := state.NewManager(storage.NewMemDB())
	b := bank.New(st)
	require.NoError(t, b.Genesis(admin.PubKey().Address().Common()))
	exec := core.NewExecutor(testChainID, st, b, nil)
	srv := httptest.NewServer(rpc.NewServer(exec, rpc.ServerConfig{}).Handler())
	t.Cleanup(srv.Close)

	out := &bytes.Buffer{}
	c := newCLI(out)
	c.endpoint = srv.URL
	c.chainID = testChainID
	c.passphrase = func() (string, error) { return "pass", nil }
	c.keystoreOpts = []crypto.KeystoreOption{crypto.WithLightScrypt()}
	return &harness{cli: c, out: out, exec: exec, adminKey: adminKey}
}

func TestApplyGlobalFlags(t *testing.T) {
	c := newCLI(&bytes.Buffer{})
	rest, err := c.applyGlobalFlags([]string{"--rpc", "http://node:9000/", "balance", "--chain=bank-main", "bank1xyz"})
	require.NoError(t, err)
	require.Equal(t, []string{"balance", "bank1xyz"}, rest)
	require.Equal(t, "http://node:9000", c.endpoint)
	require.Equal(t, "bank-main", c.chainID)

	_, err = c.applyGlobalFlags([]string{"--chain"})
	require.Error(t, err)
}

func TestParseAmount(t *testing.T) {
	amount, err := parseAmount("1000000000000000000000")
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000000", amount.String())

	for _, raw := range []string{"", "-1", "1.5", "ten"} {
		_, err := parseAmount(raw)
		require.Error(t, err, raw)
	}
}

func TestUsageErrors(t *testing.T) {
	h := newHarness(t)
	require.True(t, errors.Is(h.cli.run([]string{"balance"}), errUsage))
	require.True(t, errors.Is(h.cli.run([]string{"launch"}), errUsage))
	require.Contains(t, h.out.String(), "Usage: bank-cli")
}

func TestDepositWithdrawFlow(t *testing.T) {
	h := newHarness(t)
	wallet := filepath.Join(t.TempDir(), "wallet.keystore")

	require.NoError(t, h.cli.run([]string{"generate-key", wallet}))
	require.Error(t, h.cli.run([]string{"generate-key", wallet}), "existing keystore must not be overwritten")

	addr, err := crypto.KeystoreAddress(wallet)
	require.NoError(t, err)
	bech := crypto.FromCommon(addr).String()

	require.NoError(t, h.cli.run([]string{"deposit", "150", wallet}))
	require.NoError(t, h.cli.run([]string{"deposit", "50", wallet}))
	require.NoError(t, h.cli.run([]string{"withdraw", "80", wallet}))

	balance, err := h.exec.Balance(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(120), balance.Uint64())
	nonce, err := h.exec.Nonce(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(3), nonce)

	h.out.Reset()
	require.NoError(t, h.cli.run([]string{"balance", bech}))
	require.Contains(t, h.out.String(), ": 120")

	h.out.Reset()
	require.NoError(t, h.cli.run([]string{"top"}))
	require.Contains(t, h.out.String(), "#1 "+bech+" 120")

	err = h.cli.run([]string{"withdraw", "500", wallet})
	require.Error(t, err)
	require.Contains(t, err.Error(), "insufficient")
}

func TestAdminCommands(t *testing.T) {
	h := newHarness(t)
	wallet := filepath.Join(t.TempDir(), "wallet.keystore")
	require.NoError(t, h.cli.run([]string{"generate-key", wallet}))
	require.NoError(t, h.cli.run([]string{"deposit", "70", wallet}))

	require.NoError(t, h.cli.run([]string{"sweep", h.adminKey}))
	addr, err := crypto.KeystoreAddress(wallet)
	require.NoError(t, err)
	balance, err := h.exec.Balance(addr)
	require.NoError(t, err)
	require.True(t, balance.IsZero())

	require.NoError(t, h.cli.run([]string{"set-admin", addr.Hex(), h.adminKey}))
	admin, err := h.exec.Admin()
	require.NoError(t, err)
	require.Equal(t, addr, admin)

	h.out.Reset()
	require.NoError(t, h.cli.run([]string{"admin"}))
	require.True(t, strings.Contains(h.out.String(), crypto.FromCommon(addr).String()))
}
