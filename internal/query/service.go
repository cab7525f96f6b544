// Package query serves the read-only HTTP surface over the projected
// tables. It never writes; freshness is whatever the dispatcher has
// checkpointed.
package query

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"StableLedger/internal/analytics"
	"StableLedger/internal/auction"
	"StableLedger/internal/core"
	"StableLedger/internal/equity"
	"StableLedger/internal/position"
	"StableLedger/internal/savings"
)

// Service bundles the read paths of every store slice.
type Service struct {
	positions   position.Store
	auctions    auction.Store
	savings     savings.Store
	equity      equity.Store
	analytics   analytics.Store
	checkpoints core.CheckpointStore
	halted      func(chainID int64) bool
	log         zerolog.Logger
}

func NewService(
	positions position.Store,
	auctions auction.Store,
	sav savings.Store,
	eq equity.Store,
	ana analytics.Store,
	checkpoints core.CheckpointStore,
	halted func(chainID int64) bool,
	log zerolog.Logger,
) *Service {
	return &Service{
		positions:   positions,
		auctions:    auctions,
		savings:     sav,
		equity:      eq,
		analytics:   ana,
		checkpoints: checkpoints,
		halted:      halted,
		log:         log,
	}
}

// Mount attaches all query routes under the given router.
func (s *Service) Mount(r chi.Router) {
	r.Route("/chains/{chainID}", func(r chi.Router) {
		r.Get("/status", s.GetChainStatus)

		r.Get("/positions/{address}", s.GetPosition)
		r.Get("/positions/{address}/updates", s.GetMintingUpdates)
		r.Get("/positions/{address}/challenges", s.GetPositionChallenges)
		r.Get("/owners/{address}/positions", s.GetPositionsByOwner)

		r.Get("/challenges/{position}/{number}", s.GetChallenge)
		r.Get("/challenges/{position}/{number}/bids", s.GetBids)

		r.Get("/savings/{module}", s.GetSavingsStatus)
		r.Get("/savings/{module}/accounts/{account}", s.GetSavingsAccount)
		r.Get("/savings/{module}/accounts/{account}/activity", s.GetSavingsActivity)

		r.Get("/equity/profit-losses", s.GetProfitLosses)

		r.Get("/analytics/snapshots", s.GetSnapshots)
		r.Get("/analytics/rollups", s.GetRollups)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func chainParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "chainID"), 10, 64)
	return id, err == nil
}

func (s *Service) GetChainStatus(w http.ResponseWriter, r *http.Request) {
	chainID, ok := chainParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chain id")
		return
	}
	cp, err := s.checkpoints.LoadCheckpoint(r.Context(), chainID)
	if err != nil {
		s.internal(w, err)
		return
	}
	resp := &ChainStatusResponse{ChainID: chainID, Halted: s.halted(chainID)}
	if cp != nil {
		resp.BlockNumber = cp.BlockNumber
		resp.LogIndex = cp.LogIndex
		resp.BlockTimestamp = cp.BlockTimestamp
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) GetPosition(w http.ResponseWriter, r *http.Request) {
	chainID, ok := chainParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chain id")
		return
	}
	p, err := s.positions.FindPosition(r.Context(), chainID, chi.URLParam(r, "address"))
	if err != nil {
		s.internal(w, err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "position not found")
		return
	}
	writeJSON(w, http.StatusOK, toPositionResponse(p))
}

func (s *Service) GetMintingUpdates(w http.ResponseWriter, r *http.Request) {
	chainID, ok := chainParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chain id")
		return
	}
	updates, err := s.positions.MintingUpdates(r.Context(), chainID, chi.URLParam(r, "address"))
	if err != nil {
		s.internal(w, err)
		return
	}
	out := make([]*MintingUpdateResponse, 0, len(updates))
	for _, u := range updates {
		out = append(out, toMintingUpdateResponse(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) GetPositionsByOwner(w http.ResponseWriter, r *http.Request) {
	chainID, ok := chainParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chain id")
		return
	}
	positions, err := s.positions.PositionsByOwner(r.Context(), chainID, chi.URLParam(r, "address"))
	if err != nil {
		s.internal(w, err)
		return
	}
	out := make([]*PositionResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, toPositionResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) GetPositionChallenges(w http.ResponseWriter, r *http.Request) {
	chainID, ok := chainParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chain id")
		return
	}
	challenges, err := s.auctions.ChallengesByPosition(r.Context(), chainID, chi.URLParam(r, "address"))
	if err != nil {
		s.internal(w, err)
		return
	}
	out := make([]*ChallengeResponse, 0, len(challenges))
	for _, c := range challenges {
		out = append(out, toChallengeResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) GetChallenge(w http.ResponseWriter, r *http.Request) {
	chainID, ok := chainParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chain id")
		return
	}
	number, err := strconv.ParseUint(chi.URLParam(r, "number"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid challenge number")
		return
	}
	c, err := s.auctions.FindChallenge(r.Context(), chainID, chi.URLParam(r, "position"), number)
	if err != nil {
		s.internal(w, err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "challenge not found")
		return
	}
	writeJSON(w, http.StatusOK, toChallengeResponse(c))
}

func (s *Service) GetBids(w http.ResponseWriter, r *http.Request) {
	chainID, ok := chainParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chain id")
		return
	}
	number, err := strconv.ParseUint(chi.URLParam(r, "number"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid challenge number")
		return
	}
	bids, err := s.auctions.Bids(r.Context(), chainID, chi.URLParam(r, "position"), number)
	if err != nil {
		s.internal(w, err)
		return
	}
	out := make([]*BidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, toBidResponse(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) GetSavingsStatus(w http.ResponseWriter, r *http.Request) {
	chainID, ok := chainParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chain id")
		return
	}
	st, err := s.savings.FindStatus(r.Context(), chainID, chi.URLParam(r, "module"))
	if err != nil {
		s.internal(w, err)
		return
	}
	if st == nil {
		writeError(w, http.StatusNotFound, "savings module not found")
		return
	}
	writeJSON(w, http.StatusOK, toSavingsStatusResponse(st))
}

func (s *Service) GetSavingsAccount(w http.ResponseWriter, r *http.Request) {
	chainID, ok := chainParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chain id")
		return
	}
	a, err := s.savings.FindAccount(r.Context(), chainID,
		chi.URLParam(r, "module"), chi.URLParam(r, "account"))
	if err != nil {
		s.internal(w, err)
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "savings account not found")
		return
	}
	writeJSON(w, http.StatusOK, toSavingsAccountResponse(a))
}

func (s *Service) GetSavingsActivity(w http.ResponseWriter, r *http.Request) {
	chainID, ok := chainParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chain id")
		return
	}
	activities, err := s.savings.Activities(r.Context(), chainID,
		chi.URLParam(r, "module"), chi.URLParam(r, "account"))
	if err != nil {
		s.internal(w, err)
		return
	}
	out := make([]*ActivityResponse, 0, len(activities))
	for _, a := range activities {
		out = append(out, toActivityResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

const defaultLimit = 100

func limitParam(r *http.Request) int {
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}
	return limit
}

func (s *Service) GetProfitLosses(w http.ResponseWriter, r *http.Request) {
	chainID, ok := chainParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chain id")
		return
	}
	entries, err := s.equity.ProfitLosses(r.Context(), chainID, limitParam(r))
	if err != nil {
		s.internal(w, err)
		return
	}
	out := make([]*ProfitLossResponse, 0, len(entries))
	for _, pl := range entries {
		out = append(out, toProfitLossResponse(pl))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) GetSnapshots(w http.ResponseWriter, r *http.Request) {
	chainID, ok := chainParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chain id")
		return
	}
	snaps, err := s.analytics.Snapshots(r.Context(), chainID, limitParam(r))
	if err != nil {
		s.internal(w, err)
		return
	}
	out := make([]*SnapshotResponse, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, toSnapshotResponse(snap))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) GetRollups(w http.ResponseWriter, r *http.Request) {
	chainID, ok := chainParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chain id")
		return
	}
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to are required (YYYY-MM-DD)")
		return
	}
	rollups, err := s.analytics.Rollups(r.Context(), chainID, from, to)
	if err != nil {
		s.internal(w, err)
		return
	}
	out := make([]*RollupResponse, 0, len(rollups))
	for _, roll := range rollups {
		out = append(out, toRollupResponse(roll))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) internal(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("query failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}
