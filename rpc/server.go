package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"bankchain/core"
	"bankchain/core/types"
	"bankchain/crypto"
	"bankchain/native/bank"
	nativecommon "bankchain/native/common"
	"bankchain/observability"
)

const maxBodyBytes = 64 << 10

// Backend is the ledger surface served over HTTP. *core.Executor implements
// it.
type Backend interface {
	Apply(ctx context.Context, tx *types.Transaction) (*core.Receipt, error)
	Balance(addr common.Address) (*uint256.Int, error)
	Admin() (common.Address, error)
	Top() ([bank.TopK]bank.Slot, error)
	Nonce(addr common.Address) (uint64, error)
	ChainID() string
}

// ServerConfig tunes the HTTP surface.
type ServerConfig struct {
	RateLimit RateLimit
	Logger    *slog.Logger
}

type Server struct {
	backend Backend
	logger  *slog.Logger
	limiter *RateLimiter
}

func NewServer(backend Backend, cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "rpc")
	return &Server{
		backend: backend,
		logger:  logger,
		limiter: NewRateLimiter(cfg.RateLimit, logger),
	}
}

// Handler returns the routed, instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(api chi.Router) {
		api.Use(s.limiter.Middleware)
		api.Post("/tx", s.observe("submit_tx", s.handleSubmitTx))
		api.Get("/balance/{address}", s.observe("balance", s.handleBalance))
		api.Get("/nonce/{address}", s.observe("nonce", s.handleNonce))
		api.Get("/admin", s.observe("admin", s.handleAdmin))
		api.Get("/top", s.observe("top", s.handleTop))
	})
	return otelhttp.NewHandler(r, "bankd")
}

func (s *Server) observe(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		observability.ModuleMetrics().Observe("bank", method, recorder.status, time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	var tx types.Transaction
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&tx); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "decode transaction: "+err.Error())
		return
	}
	receipt, err := s.backend.Apply(r.Context(), &tx)
	if err != nil {
		status, code := classify(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("transaction failed", "error", err)
		}
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, TxResponse{Receipt: receipt})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddressParam(w, r)
	if !ok {
		return
	}
	balance, err := s.backend.Balance(addr)
	if err != nil {
		status, code := classify(err)
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Address: crypto.FromCommon(addr).String(), Balance: balance.Dec()})
}

func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddressParam(w, r)
	if !ok {
		return
	}
	nonce, err := s.backend.Nonce(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, NonceResponse{Address: crypto.FromCommon(addr).String(), Nonce: nonce})
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	admin, err := s.backend.Admin()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, AdminResponse{Admin: crypto.FromCommon(admin).String()})
}

func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	slots, err := s.backend.Top()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	resp := TopResponse{Top: []RankEntry{}}
	for i, slot := range slots {
		if slot.Empty() {
			continue
		}
		resp.Top = append(resp.Top, RankEntry{
			Rank:    i + 1,
			Address: crypto.FromCommon(slot.Account).String(),
			Balance: slot.Balance.Dec(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseAddressParam(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	addr, err := crypto.ParseAccount(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_address", err.Error())
		return common.Address{}, false
	}
	return addr, true
}

// classify maps ledger errors onto an HTTP status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrInvalidChainID):
		return http.StatusBadRequest, "invalid_chain_id"
	case errors.Is(err, core.ErrBadSignature):
		return http.StatusUnauthorized, "invalid_signature"
	case errors.Is(err, core.ErrBadNonce):
		return http.StatusConflict, "nonce_mismatch"
	case errors.Is(err, core.ErrUnknownTxType), errors.Is(err, core.ErrInvalidValue), errors.Is(err, core.ErrInvalidTarget):
		return http.StatusBadRequest, "invalid_transaction"
	case errors.Is(err, bank.ErrZeroAddress):
		return http.StatusBadRequest, "zero_address"
	case errors.Is(err, bank.ErrZeroAmount):
		return http.StatusBadRequest, "zero_amount"
	case errors.Is(err, bank.ErrBelowMinimum):
		return http.StatusUnprocessableEntity, "below_minimum"
	case errors.Is(err, bank.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, bank.ErrOverflow):
		return http.StatusUnprocessableEntity, "overflow"
	case errors.Is(err, bank.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, bank.ErrReentrant):
		return http.StatusConflict, "reentrant"
	case errors.Is(err, nativecommon.ErrQuotaRequestsExceeded), errors.Is(err, nativecommon.ErrQuotaValueCapExceeded):
		return http.StatusTooManyRequests, "quota_exceeded"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable, "paused"
	case errors.Is(err, bank.ErrTransferFailed):
		return http.StatusBadGateway, "transfer_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
