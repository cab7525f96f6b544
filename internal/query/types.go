package query

import (
	"math/big"

	"StableLedger/internal/analytics"
	"StableLedger/internal/auction"
	"StableLedger/internal/equity"
	"StableLedger/internal/position"
	"StableLedger/internal/savings"
)

// Wire DTOs. Amounts are decimal strings; JSON numbers cannot carry
// 256-bit values.

func amt(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type PositionResponse struct {
	ChainID    int64  `json:"chain_id"`
	Position   string `json:"position"`
	Generation string `json:"generation"`
	Owner      string `json:"owner"`
	DebtToken  string `json:"debt_token"`
	Collateral string `json:"collateral"`
	Price      string `json:"price"`

	Created    uint64 `json:"created"`
	IsOriginal bool   `json:"is_original"`
	IsClone    bool   `json:"is_clone"`
	Denied     bool   `json:"denied"`
	Closed     bool   `json:"closed"`
	Original   string `json:"original,omitempty"`

	MinimumCollateral   string `json:"minimum_collateral"`
	RatePPM             int64  `json:"rate_ppm"`
	ReserveContribution int64  `json:"reserve_contribution"`
	Start               uint64 `json:"start"`
	Cooldown            uint64 `json:"cooldown"`
	Expiration          uint64 `json:"expiration"`
	ChallengePeriod     uint64 `json:"challenge_period"`

	CollateralSymbol   string `json:"collateral_symbol"`
	CollateralDecimals uint8  `json:"collateral_decimals"`
	CollateralBalance  string `json:"collateral_balance"`

	LimitForPosition     string `json:"limit_for_position"`
	LimitForClones       string `json:"limit_for_clones"`
	AvailableForPosition string `json:"available_for_position"`
	AvailableForClones   string `json:"available_for_clones"`
	Minted               string `json:"minted"`
}

func toPositionResponse(p *position.Position) *PositionResponse {
	return &PositionResponse{
		ChainID:    p.ChainID,
		Position:   p.Position,
		Generation: p.Generation.String(),
		Owner:      p.Owner,
		DebtToken:  p.DebtToken,
		Collateral: p.Collateral,
		Price:      amt(p.Price),

		Created:    p.Created,
		IsOriginal: p.IsOriginal,
		IsClone:    p.IsClone,
		Denied:     p.Denied,
		Closed:     p.Closed,
		Original:   p.Original,

		MinimumCollateral:   amt(p.MinimumCollateral),
		RatePPM:             p.RatePPM,
		ReserveContribution: p.ReserveContribution,
		Start:               p.Start,
		Cooldown:            p.Cooldown,
		Expiration:          p.Expiration,
		ChallengePeriod:     p.ChallengePeriod,

		CollateralSymbol:   p.CollateralSymbol,
		CollateralDecimals: p.CollateralDecimals,
		CollateralBalance:  amt(p.CollateralBalance),

		LimitForPosition:     amt(p.LimitForPosition),
		LimitForClones:       amt(p.LimitForClones),
		AvailableForPosition: amt(p.AvailableForPosition),
		AvailableForClones:   amt(p.AvailableForClones),
		Minted:               amt(p.Minted),
	}
}

type MintingUpdateResponse struct {
	Sequence uint64 `json:"sequence"`
	TxHash   string `json:"tx_hash"`
	Created  uint64 `json:"created"`

	Size   string `json:"size"`
	Price  string `json:"price"`
	Minted string `json:"minted"`

	SizeDelta   string `json:"size_delta"`
	PriceDelta  string `json:"price_delta"`
	MintedDelta string `json:"minted_delta"`

	RatePPM int64  `json:"rate_ppm"`
	FeePPM  int64  `json:"fee_ppm"`
	FeePaid string `json:"fee_paid"`
}

func toMintingUpdateResponse(u *position.MintingUpdate) *MintingUpdateResponse {
	return &MintingUpdateResponse{
		Sequence:    u.Sequence,
		TxHash:      u.TxHash,
		Created:     u.Created,
		Size:        amt(u.Size),
		Price:       amt(u.Price),
		Minted:      amt(u.Minted),
		SizeDelta:   amt(u.SizeDelta),
		PriceDelta:  amt(u.PriceDelta),
		MintedDelta: amt(u.MintedDelta),
		RatePPM:     u.RatePPM,
		FeePPM:      u.FeePPM,
		FeePaid:     amt(u.FeePaid),
	}
}

type ChallengeResponse struct {
	Position   string `json:"position"`
	Number     uint64 `json:"number"`
	Challenger string `json:"challenger"`
	Start      uint64 `json:"start"`
	Created    uint64 `json:"created"`
	Duration   uint64 `json:"duration"`
	Size       string `json:"size"`
	LiqPrice   string `json:"liq_price"`

	Bids               uint64 `json:"bids"`
	FilledSize         string `json:"filled_size"`
	AcquiredCollateral string `json:"acquired_collateral"`
	Status             string `json:"status"`
}

func toChallengeResponse(c *auction.Challenge) *ChallengeResponse {
	return &ChallengeResponse{
		Position:           c.Position,
		Number:             c.Number,
		Challenger:         c.Challenger,
		Start:              c.Start,
		Created:            c.Created,
		Duration:           c.Duration,
		Size:               amt(c.Size),
		LiqPrice:           amt(c.LiqPrice),
		Bids:               c.Bids,
		FilledSize:         amt(c.FilledSize),
		AcquiredCollateral: amt(c.AcquiredCollateral),
		Status:             string(c.Status),
	}
}

type BidResponse struct {
	BidSeq  uint64 `json:"bid_seq"`
	TxHash  string `json:"tx_hash"`
	Bidder  string `json:"bidder"`
	Created uint64 `json:"created"`
	Kind    string `json:"kind"`

	Amount             string `json:"amount"`
	Price              string `json:"price"`
	FilledSize         string `json:"filled_size"`
	AcquiredCollateral string `json:"acquired_collateral"`
	ChallengeSize      string `json:"challenge_size"`
}

func toBidResponse(b *auction.Bid) *BidResponse {
	return &BidResponse{
		BidSeq:             b.BidSeq,
		TxHash:             b.TxHash,
		Bidder:             b.Bidder,
		Created:            b.Created,
		Kind:               string(b.Kind),
		Amount:             amt(b.Amount),
		Price:              amt(b.Price),
		FilledSize:         amt(b.FilledSize),
		AcquiredCollateral: amt(b.AcquiredCollateral),
		ChallengeSize:      amt(b.ChallengeSize),
	}
}

type SavingsStatusResponse struct {
	Module  string `json:"module"`
	Updated uint64 `json:"updated"`
	RatePPM int64  `json:"rate_ppm"`

	Save     string `json:"save"`
	Withdraw string `json:"withdraw"`
	Interest string `json:"interest"`
	Balance  string `json:"balance"`

	CounterSave     uint64 `json:"counter_save"`
	CounterWithdraw uint64 `json:"counter_withdraw"`
	CounterInterest uint64 `json:"counter_interest"`
}

func toSavingsStatusResponse(st *savings.Status) *SavingsStatusResponse {
	return &SavingsStatusResponse{
		Module:          st.Module,
		Updated:         st.Updated,
		RatePPM:         st.RatePPM,
		Save:            amt(st.Save),
		Withdraw:        amt(st.Withdraw),
		Interest:        amt(st.Interest),
		Balance:         amt(st.Balance),
		CounterSave:     st.CounterSave,
		CounterWithdraw: st.CounterWithdraw,
		CounterInterest: st.CounterInterest,
	}
}

type SavingsAccountResponse struct {
	Module  string `json:"module"`
	Account string `json:"account"`
	Created uint64 `json:"created"`
	Updated uint64 `json:"updated"`

	Save     string `json:"save"`
	Withdraw string `json:"withdraw"`
	Interest string `json:"interest"`
	Balance  string `json:"balance"`

	Referrer       string `json:"referrer,omitempty"`
	ReferrerFeePPM int64  `json:"referrer_fee_ppm,omitempty"`
}

func toSavingsAccountResponse(a *savings.Account) *SavingsAccountResponse {
	return &SavingsAccountResponse{
		Module:         a.Module,
		Account:        a.Account,
		Created:        a.Created,
		Updated:        a.Updated,
		Save:           amt(a.Save),
		Withdraw:       amt(a.Withdraw),
		Interest:       amt(a.Interest),
		Balance:        amt(a.Balance),
		Referrer:       a.Referrer,
		ReferrerFeePPM: a.ReferrerFeePPM,
	}
}

type ActivityResponse struct {
	Count       uint64 `json:"count"`
	Created     uint64 `json:"created"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	Kind        string `json:"kind"`

	Amount  string `json:"amount"`
	RatePPM int64  `json:"rate_ppm"`
	Balance string `json:"balance"`
}

func toActivityResponse(a *savings.Activity) *ActivityResponse {
	return &ActivityResponse{
		Count:       a.Count,
		Created:     a.Created,
		BlockNumber: a.BlockNumber,
		TxHash:      a.TxHash,
		Kind:        string(a.Kind),
		Amount:      amt(a.Amount),
		RatePPM:     a.RatePPM,
		Balance:     amt(a.Balance),
	}
}

type ProfitLossResponse struct {
	Count   uint64 `json:"count"`
	Created uint64 `json:"created"`
	TxHash  string `json:"tx_hash"`
	Kind    string `json:"kind"`
	Minter  string `json:"minter"`

	Amount   string `json:"amount"`
	Profits  string `json:"profits"`
	Losses   string `json:"losses"`
	PerShare string `json:"per_share"`
}

func toProfitLossResponse(pl *equity.ProfitLoss) *ProfitLossResponse {
	return &ProfitLossResponse{
		Count:    pl.Count,
		Created:  pl.Created,
		TxHash:   pl.TxHash,
		Kind:     string(pl.Kind),
		Minter:   pl.Minter,
		Amount:   amt(pl.Amount),
		Profits:  amt(pl.Profits),
		Losses:   amt(pl.Losses),
		PerShare: amt(pl.PerShare),
	}
}

type MetricsResponse struct {
	TotalInflow   string `json:"total_inflow"`
	TotalOutflow  string `json:"total_outflow"`
	TotalTradeFee string `json:"total_trade_fee"`

	TotalSupply  string `json:"total_supply"`
	TotalEquity  string `json:"total_equity"`
	TotalSavings string `json:"total_savings"`

	ShareSupply string `json:"share_supply"`
	SharePrice  string `json:"share_price"`

	TotalMintedV1 string `json:"total_minted_v1"`
	TotalMintedV2 string `json:"total_minted_v2"`

	CurrentLeadRate    string `json:"current_lead_rate"`
	ClaimableInterest  string `json:"claimable_interest"`
	ProjectedInterest  string `json:"projected_interest"`
	AnnualV1Interest   string `json:"annual_v1_interest"`
	AnnualV2Interest   string `json:"annual_v2_interest"`
	AnnualV1BorrowRate string `json:"annual_v1_borrow_rate"`
	AnnualV2BorrowRate string `json:"annual_v2_borrow_rate"`

	AnnualNetEarnings   string `json:"annual_net_earnings"`
	RealizedNetEarnings string `json:"realized_net_earnings"`
	EarningsPerShare    string `json:"earnings_per_share"`
}

func toMetricsResponse(m *analytics.Metrics) MetricsResponse {
	return MetricsResponse{
		TotalInflow:         amt(m.TotalInflow),
		TotalOutflow:        amt(m.TotalOutflow),
		TotalTradeFee:       amt(m.TotalTradeFee),
		TotalSupply:         amt(m.TotalSupply),
		TotalEquity:         amt(m.TotalEquity),
		TotalSavings:        amt(m.TotalSavings),
		ShareSupply:         amt(m.ShareSupply),
		SharePrice:          amt(m.SharePrice),
		TotalMintedV1:       amt(m.TotalMintedV1),
		TotalMintedV2:       amt(m.TotalMintedV2),
		CurrentLeadRate:     amt(m.CurrentLeadRate),
		ClaimableInterest:   amt(m.ClaimableInterest),
		ProjectedInterest:   amt(m.ProjectedInterest),
		AnnualV1Interest:    amt(m.AnnualV1Interest),
		AnnualV2Interest:    amt(m.AnnualV2Interest),
		AnnualV1BorrowRate:  amt(m.AnnualV1BorrowRate),
		AnnualV2BorrowRate:  amt(m.AnnualV2BorrowRate),
		AnnualNetEarnings:   amt(m.AnnualNetEarnings),
		RealizedNetEarnings: amt(m.RealizedNetEarnings),
		EarningsPerShare:    amt(m.EarningsPerShare),
	}
}

type SnapshotResponse struct {
	Timestamp uint64 `json:"timestamp"`
	Kind      string `json:"kind"`
	Sequence  uint64 `json:"sequence"`
	Amount    string `json:"amount"`
	TxHash    string `json:"tx_hash"`

	Metrics MetricsResponse `json:"metrics"`
}

func toSnapshotResponse(s *analytics.Snapshot) *SnapshotResponse {
	return &SnapshotResponse{
		Timestamp: s.Timestamp,
		Kind:      s.Kind,
		Sequence:  s.Sequence,
		Amount:    amt(s.Amount),
		TxHash:    s.TxHash,
		Metrics:   toMetricsResponse(&s.Metrics),
	}
}

type RollupResponse struct {
	Day       string `json:"day"`
	Timestamp uint64 `json:"timestamp"`
	TxHash    string `json:"tx_hash"`

	Metrics MetricsResponse `json:"metrics"`
}

func toRollupResponse(r *analytics.DailyRollup) *RollupResponse {
	return &RollupResponse{
		Day:       r.Day,
		Timestamp: r.Timestamp,
		TxHash:    r.TxHash,
		Metrics:   toMetricsResponse(&r.Metrics),
	}
}

type ChainStatusResponse struct {
	ChainID        int64  `json:"chain_id"`
	BlockNumber    uint64 `json:"block_number"`
	LogIndex       uint32 `json:"log_index"`
	BlockTimestamp uint64 `json:"block_timestamp"`
	Halted         bool   `json:"halted"`
}
