package api

import (
	"net/http"

	"github.com/gorilla/mux"
	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/models"
	"github.com/whale-tracker/internal/types"
)

// WalletListResponse is the body of GET /api/wallets
type WalletListResponse struct {
	Wallets []models.WalletMetrics `json:"wallets"`
	Count   int                    `json:"count"`
}

// DailyResponse is the body of GET /api/wallets/{address}/daily
type DailyResponse struct {
	Wallet string                  `json:"wallet"`
	From   *types.Date             `json:"from,omitempty"`
	To     *types.Date             `json:"to,omitempty"`
	Days   []models.DailyAggregate `json:"days"`
}

// handleListWallets handles GET /api/wallets
func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	wallets, err := s.metrics.List(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	if wallets == nil {
		wallets = []models.WalletMetrics{}
	}
	respondJSON(w, http.StatusOK, WalletListResponse{Wallets: wallets, Count: len(wallets)})
}

// handleGetWallet handles GET /api/wallets/{address}
func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	m, err := s.metrics.Get(r.Context(), address)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// handleGetDaily handles GET /api/wallets/{address}/daily?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *Server) handleGetDaily(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	from, err := parseDateParam(r, "from")
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	to, err := parseDateParam(r, "to")
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		s.respondServiceError(w, apperrors.NewInvalidParameterError("to", "must not be before from"))
		return
	}

	days, err := s.daily.GetRange(r.Context(), address, from, to)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	if days == nil {
		days = []models.DailyAggregate{}
	}

	resp := DailyResponse{Wallet: address, Days: days}
	if !from.IsZero() {
		resp.From = &from
	}
	if !to.IsZero() {
		resp.To = &to
	}
	respondJSON(w, http.StatusOK, resp)
}

func parseDateParam(r *http.Request, name string) (types.Date, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return types.Date{}, nil
	}
	d, err := types.ParseDate(raw)
	if err != nil {
		return types.Date{}, apperrors.NewInvalidParameterError(name, "expected YYYY-MM-DD")
	}
	return d, nil
}
