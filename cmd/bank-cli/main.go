package main

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	"bankchain/cmd/internal/passphrase"
	"bankchain/core/types"
	"bankchain/crypto"
)

const (
	walletPassEnv  = "BANK_WALLET_PASS"
	defaultChainID = "bank-local"
	defaultKeyFile = "wallet.keystore"
)

type cli struct {
	endpoint     string
	chainID      string
	out          io.Writer
	http         *http.Client
	passphrase   func() (string, error)
	keystoreOpts []crypto.KeystoreOption
}

func newCLI(out io.Writer) *cli {
	return &cli{
		endpoint:   envOr("RPC_URL", "http://localhost:8080"),
		chainID:    envOr("BANK_CHAIN_ID", defaultChainID),
		out:        out,
		http:       &http.Client{Timeout: 10 * time.Second},
		passphrase: passphrase.NewSource(walletPassEnv, "wallet").Get,
	}
}

func main() {
	c := newCLI(os.Stdout)
	if err := c.run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

var errUsage = errors.New("invalid arguments")

func (c *cli) run(args []string) error {
	args, err := c.applyGlobalFlags(args)
	if err != nil {
		return err
	}
	if len(args) < 1 {
		c.printUsage()
		return nil
	}

	command, rest := args[0], args[1:]
	switch command {
	case "generate-key":
		return c.generateKey(optionalArg(rest, 0, defaultKeyFile))
	case "address":
		return c.showAddress(optionalArg(rest, 0, defaultKeyFile))
	case "balance":
		if len(rest) < 1 {
			return c.usageError("please provide an address")
		}
		return c.getBalance(rest[0])
	case "nonce":
		if len(rest) < 1 {
			return c.usageError("please provide an address")
		}
		return c.getNonce(rest[0])
	case "admin":
		return c.getAdmin()
	case "top":
		return c.getTop()
	case "deposit":
		if len(rest) < 1 {
			return c.usageError("please provide an amount")
		}
		amount, err := parseAmount(rest[0])
		if err != nil {
			return err
		}
		return c.submit(types.TxTypeDeposit, nil, amount, optionalArg(rest, 1, defaultKeyFile))
	case "withdraw":
		if len(rest) < 1 {
			return c.usageError("please provide an amount")
		}
		amount, err := parseAmount(rest[0])
		if err != nil {
			return err
		}
		return c.submit(types.TxTypeWithdraw, nil, amount, optionalArg(rest, 1, defaultKeyFile))
	case "sweep":
		return c.submit(types.TxTypeWithdraw, nil, big.NewInt(0), optionalArg(rest, 0, defaultKeyFile))
	case "set-admin":
		if len(rest) < 1 {
			return c.usageError("please provide the new admin address")
		}
		next, err := crypto.ParseAccount(rest[0])
		if err != nil {
			return err
		}
		return c.submit(types.TxTypeSetAdmin, next.Bytes(), big.NewInt(0), optionalArg(rest, 1, defaultKeyFile))
	default:
		return c.usageError(fmt.Sprintf("unknown command %q", command))
	}
}

func optionalArg(args []string, i int, fallback string) string {
	if i < len(args) && strings.TrimSpace(args[i]) != "" {
		return args[i]
	}
	return fallback
}

func (c *cli) applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--rpc" || arg == "--chain":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for %s", arg)
			}
			c.setGlobal(arg, args[i+1])
			i++
		case strings.HasPrefix(arg, "--rpc="):
			c.setGlobal("--rpc", strings.TrimPrefix(arg, "--rpc="))
		case strings.HasPrefix(arg, "--chain="):
			c.setGlobal("--chain", strings.TrimPrefix(arg, "--chain="))
		default:
			out = append(out, arg)
		}
	}
	return out, nil
}

func (c *cli) setGlobal(flag, value string) {
	switch flag {
	case "--rpc":
		c.endpoint = strings.TrimRight(strings.TrimSpace(value), "/")
	case "--chain":
		c.chainID = strings.TrimSpace(value)
	}
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

func (c *cli) usageError(msg string) error {
	c.printUsage()
	return fmt.Errorf("%w: %s", errUsage, msg)
}

func (c *cli) printUsage() {
	fmt.Fprintln(c.out, "Usage: bank-cli [--rpc URL] [--chain ID] <command> [arguments]")
	fmt.Fprintln(c.out, "Commands:")
	fmt.Fprintln(c.out, "  generate-key [keystore]            Create a new encrypted wallet keystore")
	fmt.Fprintln(c.out, "  address [keystore]                 Print the address held by a keystore")
	fmt.Fprintln(c.out, "  balance <address>                  Show an account balance")
	fmt.Fprintln(c.out, "  nonce <address>                    Show the next nonce for an account")
	fmt.Fprintln(c.out, "  admin                              Show the current admin")
	fmt.Fprintln(c.out, "  top                                Show the leaderboard")
	fmt.Fprintln(c.out, "  deposit <amount> [keystore]        Deposit funds")
	fmt.Fprintln(c.out, "  withdraw <amount> [keystore]       Withdraw own funds")
	fmt.Fprintln(c.out, "  sweep [keystore]                   Admin only: drain every balance")
	fmt.Fprintln(c.out, "  set-admin <address> [keystore]     Admin only: hand over the admin role")
}

func (c *cli) generateKey(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("keystore %s already exists", path)
	}
	pass, err := c.passphrase()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(path, key, pass, c.keystoreOpts...); err != nil {
		return fmt.Errorf("failed to save keystore %s: %w", path, err)
	}
	fmt.Fprintf(c.out, "Generated new key and saved to %s\n", path)
	fmt.Fprintf(c.out, "Your address is: %s\n", key.PubKey().Address().String())
	return nil
}

func (c *cli) showAddress(path string) error {
	addr, err := crypto.KeystoreAddress(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s\n%s\n", crypto.FromCommon(addr).String(), addr.Hex())
	return nil
}

func (c *cli) getBalance(addr string) error {
	resp, err := c.fetchBalance(addr)
	if err != nil {
		return fmt.Errorf("fetch balance: %w", err)
	}
	fmt.Fprintf(c.out, "Balance for %s: %s\n", resp.Address, resp.Balance)
	return nil
}

func (c *cli) getNonce(addr string) error {
	nonce, err := c.fetchNonce(addr)
	if err != nil {
		return fmt.Errorf("fetch nonce: %w", err)
	}
	fmt.Fprintf(c.out, "Next nonce for %s: %d\n", addr, nonce)
	return nil
}

func (c *cli) getAdmin() error {
	resp, err := c.fetchAdmin()
	if err != nil {
		return fmt.Errorf("fetch admin: %w", err)
	}
	fmt.Fprintf(c.out, "Admin: %s\n", resp.Admin)
	return nil
}

func (c *cli) getTop() error {
	resp, err := c.fetchTop()
	if err != nil {
		return fmt.Errorf("fetch leaderboard: %w", err)
	}
	if len(resp.Top) == 0 {
		fmt.Fprintln(c.out, "Leaderboard is empty.")
		return nil
	}
	for _, entry := range resp.Top {
		fmt.Fprintf(c.out, "  #%d %s %s\n", entry.Rank, entry.Address, entry.Balance)
	}
	return nil
}

func (c *cli) submit(txType types.TxType, to []byte, amount *big.Int, keyFile string) error {
	key, err := c.loadKey(keyFile)
	if err != nil {
		return err
	}
	sender := key.PubKey().Address()
	nonce, err := c.fetchNonce(sender.String())
	if err != nil {
		return fmt.Errorf("fetch nonce: %w", err)
	}

	tx := &types.Transaction{
		ChainID: c.chainID,
		Type:    txType,
		Nonce:   nonce,
		To:      to,
		Value:   amount,
	}
	if err := tx.Sign(key.PrivateKey); err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	receipt, err := c.sendTransaction(tx)
	if err != nil {
		return fmt.Errorf("send %s transaction: %w", txType, err)
	}
	fmt.Fprintf(c.out, "Applied %s transaction %s (nonce %d)\n", receipt.Type, receipt.TxHash.Hex(), receipt.Nonce)
	for _, ev := range receipt.Events {
		fmt.Fprintf(c.out, "  event %s %v\n", ev.Type, ev.Attributes)
	}
	return nil
}

func (c *cli) loadKey(path string) (*crypto.PrivateKey, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("keystore %s not found. run bank-cli generate-key first", path)
		}
		return nil, err
	}
	pass, err := c.passphrase()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, pass)
}
