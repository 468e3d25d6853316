package api

import (
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wallet-monitor/internal/logging"
	"github.com/wallet-monitor/internal/types"
)

// AddWalletRequest is the POST /api/wallets body. The threshold is entered
// in ETH, the way operators think about it; it is converted to wei at the
// boundary and stays integral from there on.
type AddWalletRequest struct {
	Address              string  `json:"address"`
	Label                string  `json:"label,omitempty"`
	ThresholdEth         *string `json:"thresholdEth,omitempty"`
	CheckIntervalSeconds *int    `json:"checkIntervalSeconds,omitempty"`
	Enabled              *bool   `json:"enabled,omitempty"`
}

// UpdateWalletRequest is the PATCH /api/wallets/{address} body. Absent
// fields are left unchanged.
type UpdateWalletRequest struct {
	Label                *string `json:"label,omitempty"`
	ThresholdEth         *string `json:"thresholdEth,omitempty"`
	CheckIntervalSeconds *int    `json:"checkIntervalSeconds,omitempty"`
	Enabled              *bool   `json:"enabled,omitempty"`
}

// WalletView is the API representation of a monitored wallet.
type WalletView struct {
	Address              string     `json:"address"`
	Label                string     `json:"label,omitempty"`
	ThresholdWei         string     `json:"thresholdWei"`
	ThresholdEth         string     `json:"thresholdEth"`
	CheckIntervalSeconds int        `json:"checkIntervalSeconds"`
	Enabled              bool       `json:"enabled"`
	Degraded             bool       `json:"degraded"`
	LastCheckedAt        *time.Time `json:"lastCheckedAt,omitempty"`
	LastKnownBalanceWei  *string    `json:"lastKnownBalanceWei,omitempty"`
	LastKnownBalanceEth  *string    `json:"lastKnownBalanceEth,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
}

// ObservationView is the API representation of one history entry.
type ObservationView struct {
	ID         string    `json:"id"`
	Address    string    `json:"address"`
	BalanceWei string    `json:"balanceWei"`
	BalanceEth string    `json:"balanceEth"`
	DeltaWei   *string   `json:"deltaWei,omitempty"`
	DeltaEth   *string   `json:"deltaEth,omitempty"`
	ObservedAt time.Time `json:"observedAt"`
	Alerted    bool      `json:"alerted"`
}

func walletView(w *types.WalletConfig) *WalletView {
	v := &WalletView{
		Address:              w.Address,
		Label:                w.Label,
		ThresholdWei:         w.ThresholdWei.String(),
		ThresholdEth:         types.FormatEther(w.ThresholdWei),
		CheckIntervalSeconds: int(w.CheckInterval / time.Second),
		Enabled:              w.Enabled,
		Degraded:             w.Degraded,
		CreatedAt:            w.CreatedAt,
	}
	if !w.LastCheckedAt.IsZero() {
		t := w.LastCheckedAt
		v.LastCheckedAt = &t
	}
	if w.LastKnownBalanceWei != nil {
		wei := w.LastKnownBalanceWei.String()
		eth := types.FormatEther(w.LastKnownBalanceWei)
		v.LastKnownBalanceWei = &wei
		v.LastKnownBalanceEth = &eth
	}
	return v
}

func observationView(obs *types.BalanceObservation) *ObservationView {
	v := &ObservationView{
		ID:         obs.ID,
		Address:    obs.Address,
		BalanceWei: obs.BalanceWei.String(),
		BalanceEth: types.FormatEther(obs.BalanceWei),
		ObservedAt: obs.ObservedAt,
		Alerted:    obs.Alerted,
	}
	if obs.DeltaWei != nil {
		wei := obs.DeltaWei.String()
		eth := types.FormatEtherSigned(obs.DeltaWei)
		v.DeltaWei = &wei
		v.DeltaEth = &eth
	}
	return v
}

// handleAddWallet handles POST /api/wallets.
func (s *Server) handleAddWallet(w http.ResponseWriter, r *http.Request) {
	var req AddWalletRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid request body: "+err.Error(), nil)
		return
	}

	threshold := s.config.DefaultThresholdWei
	if req.ThresholdEth != nil {
		var err error
		threshold, err = types.EtherToWei(*req.ThresholdEth)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
			return
		}
	}
	if threshold == nil {
		threshold = big.NewInt(0)
	}

	interval := s.config.DefaultCheckInterval
	if req.CheckIntervalSeconds != nil {
		interval = time.Duration(*req.CheckIntervalSeconds) * time.Second
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	added, err := s.engine.Scheduler().AddWallet(&types.WalletConfig{
		Address:       req.Address,
		Label:         req.Label,
		ThresholdWei:  threshold,
		CheckInterval: interval,
		Enabled:       enabled,
	})
	if err != nil {
		respondWithError(w, err)
		return
	}

	if s.wallets != nil {
		if err := s.wallets.Create(r.Context(), added); err != nil {
			// Roll the scheduler back so memory and disk cannot disagree.
			_ = s.engine.Scheduler().RemoveWallet(added.Address)
			respondWithError(w, err)
			return
		}
	}

	respondJSON(w, http.StatusCreated, walletView(added))
}

// handleListWallets handles GET /api/wallets.
func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	wallets := s.engine.Scheduler().Snapshot()
	views := make([]*WalletView, 0, len(wallets))
	for _, wc := range wallets {
		views = append(views, walletView(wc))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"wallets": views,
		"count":   len(views),
	})
}

// handleGetWallet handles GET /api/wallets/{address}.
func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	wc, err := s.engine.Scheduler().GetWallet(address)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, walletView(wc))
}

// handleUpdateWallet handles PATCH /api/wallets/{address}.
func (s *Server) handleUpdateWallet(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	var req UpdateWalletRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid request body: "+err.Error(), nil)
		return
	}

	upd := types.WalletUpdate{
		Label:   req.Label,
		Enabled: req.Enabled,
	}
	if req.ThresholdEth != nil {
		threshold, err := types.EtherToWei(*req.ThresholdEth)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
			return
		}
		upd.ThresholdWei = threshold
	}
	if req.CheckIntervalSeconds != nil {
		interval := time.Duration(*req.CheckIntervalSeconds) * time.Second
		upd.CheckInterval = &interval
	}

	updated, err := s.engine.Scheduler().UpdateConfig(address, upd)
	if err != nil {
		respondWithError(w, err)
		return
	}

	if s.wallets != nil {
		if err := s.wallets.Update(r.Context(), updated); err != nil {
			logging.FromContext(r.Context()).WithError(err).Warn("Failed to persist wallet update")
		}
	}

	respondJSON(w, http.StatusOK, walletView(updated))
}

// handleRemoveWallet handles DELETE /api/wallets/{address}.
func (s *Server) handleRemoveWallet(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	wc, err := s.engine.Scheduler().GetWallet(address)
	if err != nil {
		respondWithError(w, err)
		return
	}
	if err := s.engine.Scheduler().RemoveWallet(wc.Address); err != nil {
		respondWithError(w, err)
		return
	}

	if s.wallets != nil {
		if err := s.wallets.Delete(r.Context(), wc.Address); err != nil {
			logging.FromContext(r.Context()).WithError(err).Warn("Failed to delete persisted wallet")
		}
	}

	// Drop any cached last observation so a removed address does not
	// linger in the cache for its full TTL.
	if inv, ok := s.history.(historyInvalidator); ok {
		if err := inv.Invalidate(r.Context(), wc.Address); err != nil {
			logging.FromContext(r.Context()).WithError(err).Warn("Failed to invalidate cached observation")
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"address": wc.Address,
		"removed": true,
	})
}

// handleWalletHistory handles GET /api/wallets/{address}/history.
func (s *Server) handleWalletHistory(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	wc, err := s.engine.Scheduler().GetWallet(address)
	if err != nil {
		respondWithError(w, err)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "limit must be between 1 and 1000", nil)
			return
		}
		limit = parsed
	}

	history, err := s.history.Observations(r.Context(), wc.Address, limit)
	if err != nil {
		respondWithError(w, err)
		return
	}

	views := make([]*ObservationView, 0, len(history))
	for _, obs := range history {
		views = append(views, observationView(obs))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"address":      wc.Address,
		"observations": views,
		"count":        len(views),
	})
}

// handleCheckWallet handles POST /api/wallets/{address}/check, an immediate
// out-of-schedule balance check.
func (s *Server) handleCheckWallet(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	obs, err := s.engine.CheckNow(r.Context(), address)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, observationView(obs))
}
