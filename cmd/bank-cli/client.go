package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"bankchain/core"
	"bankchain/core/types"
	"bankchain/rpc"
)

func (c *cli) fetchBalance(addr string) (*rpc.BalanceResponse, error) {
	var out rpc.BalanceResponse
	if err := c.get("/balance/"+url.PathEscape(addr), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *cli) fetchNonce(addr string) (uint64, error) {
	var out rpc.NonceResponse
	if err := c.get("/nonce/"+url.PathEscape(addr), &out); err != nil {
		return 0, err
	}
	return out.Nonce, nil
}

func (c *cli) fetchAdmin() (*rpc.AdminResponse, error) {
	var out rpc.AdminResponse
	if err := c.get("/admin", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *cli) fetchTop() (*rpc.TopResponse, error) {
	var out rpc.TopResponse
	if err := c.get("/top", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *cli) sendTransaction(tx *types.Transaction) (*core.Receipt, error) {
	payload, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.endpoint+"/tx", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	var out rpc.TxResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	if out.Receipt == nil {
		return nil, fmt.Errorf("node returned no receipt")
	}
	return out.Receipt, nil
}

func (c *cli) get(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return c.do(req, out)
}

func (c *cli) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var body struct {
			Error rpc.ErrorBody `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error.Code == "" {
			return fmt.Errorf("node returned %s", resp.Status)
		}
		return fmt.Errorf("error from node (%s): %s", body.Error.Code, body.Error.Message)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from node: %w", err)
	}
	return nil
}
