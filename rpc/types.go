package rpc

import (
	"encoding/json"
	"net/http"

	"bankchain/core"
)

// ErrorBody is the payload of every failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error ErrorBody `json:"error"`
}

// BalanceResponse reports one account balance as a decimal string.
type BalanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// AdminResponse reports the current admin.
type AdminResponse struct {
	Admin string `json:"admin"`
}

// NonceResponse reports the next nonce expected from an account.
type NonceResponse struct {
	Address string `json:"address"`
	Nonce   uint64 `json:"nonce"`
}

// RankEntry is one occupied leaderboard slot. Rank starts at 1.
type RankEntry struct {
	Rank    int    `json:"rank"`
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// TopResponse lists the occupied leaderboard slots, highest first.
type TopResponse struct {
	Top []RankEntry `json:"top"`
}

// TxResponse wraps the receipt of an applied transaction.
type TxResponse struct {
	Receipt *core.Receipt `json:"receipt"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorResponse{Error: ErrorBody{Code: code, Message: message}})
}
