package store

import (
	"context"
	"fmt"
	"maps"
	"math/big"
	"sort"
	"sync"

	"StableLedger/internal/analytics"
	"StableLedger/internal/auction"
	"StableLedger/internal/core"
	"StableLedger/internal/equity"
	"StableLedger/internal/event"
	fpmath "StableLedger/internal/math"
	"StableLedger/internal/position"
	"StableLedger/internal/savings"
)

// Memory implements every storage interface in process. It backs the
// test suites and mirrors Postgres semantics: insert-or-ignore on
// conflicting keys, merge-style upserts, (nil, nil) on absent finds.
// Rows are copied on the way in and out so callers never alias store
// state.
type Memory struct {
	mu   sync.Mutex
	txMu sync.Mutex

	positions      map[string]*position.Position
	mintingUpdates map[string]*position.MintingUpdate
	statusCounters map[string]*position.StatusCounters

	challenges map[string]*auction.Challenge
	bids       map[string]*auction.Bid

	savingsStatus   map[string]*savings.Status
	savingsAccounts map[string]*savings.Account
	activities      []*savings.Activity
	rateChanges     []*savings.RateChange
	rateProposals   []*savings.RateProposal

	profitLosses []*equity.ProfitLoss
	trades       []*equity.Trade
	mintBurn     map[string]*equity.MintBurn

	accumulators map[string]*big.Int
	sequences    map[string]uint64
	activeUsers  map[string]uint64

	snapshots []*analytics.Snapshot
	rollups   map[string]*analytics.DailyRollup

	applied      map[string]bool
	appliedOrder map[int64][]string
	checkpoints  map[int64]*core.Checkpoint
	eventLog     []*core.LogRecord
}

func NewMemory() *Memory {
	return &Memory{
		positions:       make(map[string]*position.Position),
		mintingUpdates:  make(map[string]*position.MintingUpdate),
		statusCounters:  make(map[string]*position.StatusCounters),
		challenges:      make(map[string]*auction.Challenge),
		bids:            make(map[string]*auction.Bid),
		savingsStatus:   make(map[string]*savings.Status),
		savingsAccounts: make(map[string]*savings.Account),
		mintBurn:        make(map[string]*equity.MintBurn),
		accumulators:    make(map[string]*big.Int),
		sequences:       make(map[string]uint64),
		activeUsers:     make(map[string]uint64),
		rollups:         make(map[string]*analytics.DailyRollup),
		applied:         make(map[string]bool),
		appliedOrder:    make(map[int64][]string),
		checkpoints:     make(map[int64]*core.Checkpoint),
	}
}

func key2(chainID int64, a string) string            { return fmt.Sprintf("%d:%s", chainID, a) }
func key3(chainID int64, a, b string) string         { return fmt.Sprintf("%d:%s:%s", chainID, a, b) }
func key3n(chainID int64, a string, n uint64) string { return fmt.Sprintf("%d:%s:%d", chainID, a, n) }
func key4n(chainID int64, a string, n, m uint64) string {
	return fmt.Sprintf("%d:%s:%d:%d", chainID, a, n, m)
}

// --- position.Store ---

func copyPosition(p *position.Position) *position.Position {
	c := *p
	c.Price = fpmath.Clone(p.Price)
	c.MinimumCollateral = fpmath.Clone(p.MinimumCollateral)
	c.CollateralBalance = fpmath.Clone(p.CollateralBalance)
	c.LimitForPosition = fpmath.Clone(p.LimitForPosition)
	c.LimitForClones = fpmath.Clone(p.LimitForClones)
	c.AvailableForPosition = fpmath.Clone(p.AvailableForPosition)
	c.AvailableForClones = fpmath.Clone(p.AvailableForClones)
	c.Minted = fpmath.Clone(p.Minted)
	return &c
}

func (m *Memory) InsertPosition(ctx context.Context, p *position.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key2(p.ChainID, p.Position)
	if _, ok := m.positions[k]; ok {
		return nil
	}
	m.positions[k] = copyPosition(p)
	return nil
}

func (m *Memory) FindPosition(ctx context.Context, chainID int64, addr string) (*position.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[key2(chainID, addr)]
	if !ok {
		return nil, nil
	}
	return copyPosition(p), nil
}

func (m *Memory) UpdatePosition(ctx context.Context, chainID int64, addr string, merge func(*position.Position)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key2(chainID, addr)
	p, ok := m.positions[k]
	if !ok {
		return false, nil
	}
	c := copyPosition(p)
	merge(c)
	m.positions[k] = c
	return true, nil
}

func copyMintingUpdate(u *position.MintingUpdate) *position.MintingUpdate {
	c := *u
	c.Size = fpmath.Clone(u.Size)
	c.Price = fpmath.Clone(u.Price)
	c.Minted = fpmath.Clone(u.Minted)
	c.SizeDelta = fpmath.Clone(u.SizeDelta)
	c.PriceDelta = fpmath.Clone(u.PriceDelta)
	c.MintedDelta = fpmath.Clone(u.MintedDelta)
	c.FeePaid = fpmath.Clone(u.FeePaid)
	return &c
}

func (m *Memory) InsertMintingUpdate(ctx context.Context, u *position.MintingUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key3n(u.ChainID, u.Position, u.Sequence)
	if _, ok := m.mintingUpdates[k]; ok {
		return nil
	}
	m.mintingUpdates[k] = copyMintingUpdate(u)
	return nil
}

func (m *Memory) FindMintingUpdate(ctx context.Context, chainID int64, addr string, sequence uint64) (*position.MintingUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.mintingUpdates[key3n(chainID, addr, sequence)]
	if !ok {
		return nil, nil
	}
	return copyMintingUpdate(u), nil
}

func (m *Memory) MintingUpdates(ctx context.Context, chainID int64, addr string) ([]*position.MintingUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*position.MintingUpdate
	for _, u := range m.mintingUpdates {
		if u.ChainID == chainID && u.Position == addr {
			out = append(out, copyMintingUpdate(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (m *Memory) UpsertStatusCounters(ctx context.Context, chainID int64, addr string, merge func(*position.StatusCounters)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key2(chainID, addr)
	sc, ok := m.statusCounters[k]
	if !ok {
		sc = &position.StatusCounters{ChainID: chainID, Position: addr}
	}
	c := *sc
	merge(&c)
	m.statusCounters[k] = &c
	return nil
}

func (m *Memory) FindStatusCounters(ctx context.Context, chainID int64, addr string) (*position.StatusCounters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.statusCounters[key2(chainID, addr)]
	if !ok {
		return nil, nil
	}
	c := *sc
	return &c, nil
}

func (m *Memory) OpenPositions(ctx context.Context, chainID int64, gen event.Generation) ([]*position.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*position.Position
	for _, p := range m.positions {
		if p.ChainID == chainID && p.Generation == gen &&
			!p.Closed && !p.Denied && p.Minted != nil && p.Minted.Sign() > 0 {
			out = append(out, copyPosition(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *Memory) PositionsByOwner(ctx context.Context, chainID int64, owner string) ([]*position.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*position.Position
	for _, p := range m.positions {
		if p.ChainID == chainID && p.Owner == owner {
			out = append(out, copyPosition(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created < out[j].Created })
	return out, nil
}

// --- auction.Store ---

func copyChallenge(c *auction.Challenge) *auction.Challenge {
	d := *c
	d.Size = fpmath.Clone(c.Size)
	d.LiqPrice = fpmath.Clone(c.LiqPrice)
	d.FilledSize = fpmath.Clone(c.FilledSize)
	d.AcquiredCollateral = fpmath.Clone(c.AcquiredCollateral)
	return &d
}

func (m *Memory) InsertChallenge(ctx context.Context, c *auction.Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key3n(c.ChainID, c.Position, c.Number)
	if _, ok := m.challenges[k]; ok {
		return nil
	}
	m.challenges[k] = copyChallenge(c)
	return nil
}

func (m *Memory) FindChallenge(ctx context.Context, chainID int64, addr string, number uint64) (*auction.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[key3n(chainID, addr, number)]
	if !ok {
		return nil, nil
	}
	return copyChallenge(c), nil
}

func (m *Memory) UpdateChallenge(ctx context.Context, chainID int64, addr string, number uint64, merge func(*auction.Challenge)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key3n(chainID, addr, number)
	c, ok := m.challenges[k]
	if !ok {
		return false, nil
	}
	d := copyChallenge(c)
	merge(d)
	m.challenges[k] = d
	return true, nil
}

func copyBid(b *auction.Bid) *auction.Bid {
	d := *b
	d.Amount = fpmath.Clone(b.Amount)
	d.Price = fpmath.Clone(b.Price)
	d.FilledSize = fpmath.Clone(b.FilledSize)
	d.AcquiredCollateral = fpmath.Clone(b.AcquiredCollateral)
	d.ChallengeSize = fpmath.Clone(b.ChallengeSize)
	return &d
}

func (m *Memory) InsertBid(ctx context.Context, b *auction.Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key4n(b.ChainID, b.Position, b.Number, b.BidSeq)
	if _, ok := m.bids[k]; ok {
		return nil
	}
	m.bids[k] = copyBid(b)
	return nil
}

func (m *Memory) Bids(ctx context.Context, chainID int64, addr string, number uint64) ([]*auction.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*auction.Bid
	for _, b := range m.bids {
		if b.ChainID == chainID && b.Position == addr && b.Number == number {
			out = append(out, copyBid(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BidSeq < out[j].BidSeq })
	return out, nil
}

func (m *Memory) ChallengesByPosition(ctx context.Context, chainID int64, addr string) ([]*auction.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*auction.Challenge
	for _, c := range m.challenges {
		if c.ChainID == chainID && c.Position == addr {
			out = append(out, copyChallenge(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// --- savings.Store ---

func copySavingsStatus(st *savings.Status) *savings.Status {
	c := *st
	c.Save = fpmath.Clone(st.Save)
	c.Withdraw = fpmath.Clone(st.Withdraw)
	c.Interest = fpmath.Clone(st.Interest)
	c.Balance = fpmath.Clone(st.Balance)
	return &c
}

func (m *Memory) UpsertStatus(ctx context.Context, chainID int64, module string, merge func(*savings.Status)) (*savings.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key2(chainID, module)
	st, ok := m.savingsStatus[k]
	if !ok {
		st = &savings.Status{
			ChainID:  chainID,
			Module:   module,
			Save:     fpmath.Zero(),
			Withdraw: fpmath.Zero(),
			Interest: fpmath.Zero(),
			Balance:  fpmath.Zero(),
		}
	}
	c := copySavingsStatus(st)
	merge(c)
	m.savingsStatus[k] = c
	return copySavingsStatus(c), nil
}

func (m *Memory) FindStatus(ctx context.Context, chainID int64, module string) (*savings.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.savingsStatus[key2(chainID, module)]
	if !ok {
		return nil, nil
	}
	return copySavingsStatus(st), nil
}

func copySavingsAccount(a *savings.Account) *savings.Account {
	c := *a
	c.Save = fpmath.Clone(a.Save)
	c.Withdraw = fpmath.Clone(a.Withdraw)
	c.Interest = fpmath.Clone(a.Interest)
	c.Balance = fpmath.Clone(a.Balance)
	return &c
}

func (m *Memory) UpsertAccount(ctx context.Context, chainID int64, module, account string, merge func(*savings.Account)) (*savings.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key3(chainID, module, account)
	a, ok := m.savingsAccounts[k]
	if !ok {
		a = &savings.Account{
			ChainID:  chainID,
			Module:   module,
			Account:  account,
			Save:     fpmath.Zero(),
			Withdraw: fpmath.Zero(),
			Interest: fpmath.Zero(),
			Balance:  fpmath.Zero(),
		}
	}
	c := copySavingsAccount(a)
	merge(c)
	m.savingsAccounts[k] = c
	return copySavingsAccount(c), nil
}

func (m *Memory) FindAccount(ctx context.Context, chainID int64, module, account string) (*savings.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.savingsAccounts[key3(chainID, module, account)]
	if !ok {
		return nil, nil
	}
	return copySavingsAccount(a), nil
}

func (m *Memory) Accounts(ctx context.Context, chainID int64, module string) ([]*savings.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*savings.Account
	for _, a := range m.savingsAccounts {
		if a.ChainID == chainID && a.Module == module {
			out = append(out, copySavingsAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out, nil
}

func copyActivity(a *savings.Activity) *savings.Activity {
	c := *a
	c.Amount = fpmath.Clone(a.Amount)
	c.Save = fpmath.Clone(a.Save)
	c.Withdraw = fpmath.Clone(a.Withdraw)
	c.Interest = fpmath.Clone(a.Interest)
	c.Balance = fpmath.Clone(a.Balance)
	return &c
}

func (m *Memory) InsertActivity(ctx context.Context, a *savings.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, have := range m.activities {
		if have.ChainID == a.ChainID && have.Module == a.Module &&
			have.Account == a.Account && have.Count == a.Count {
			return nil
		}
	}
	m.activities = append(m.activities, copyActivity(a))
	return nil
}

func (m *Memory) Activities(ctx context.Context, chainID int64, module, account string) ([]*savings.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*savings.Activity
	for _, a := range m.activities {
		if a.ChainID == chainID && a.Module == module && a.Account == account {
			out = append(out, copyActivity(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count < out[j].Count })
	return out, nil
}

func (m *Memory) InsertRateChange(ctx context.Context, rc *savings.RateChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, have := range m.rateChanges {
		if have.ChainID == rc.ChainID && have.Module == rc.Module && have.Count == rc.Count {
			return nil
		}
	}
	c := *rc
	m.rateChanges = append(m.rateChanges, &c)
	return nil
}

func (m *Memory) InsertRateProposal(ctx context.Context, rp *savings.RateProposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, have := range m.rateProposals {
		if have.ChainID == rp.ChainID && have.Module == rp.Module && have.Count == rp.Count {
			return nil
		}
	}
	c := *rp
	m.rateProposals = append(m.rateProposals, &c)
	return nil
}

// --- equity.Store ---

func copyProfitLoss(pl *equity.ProfitLoss) *equity.ProfitLoss {
	c := *pl
	c.Amount = fpmath.Clone(pl.Amount)
	c.Profits = fpmath.Clone(pl.Profits)
	c.Losses = fpmath.Clone(pl.Losses)
	c.PerShare = fpmath.Clone(pl.PerShare)
	return &c
}

func (m *Memory) InsertProfitLoss(ctx context.Context, pl *equity.ProfitLoss) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, have := range m.profitLosses {
		if have.ChainID == pl.ChainID && have.Count == pl.Count {
			return nil
		}
	}
	m.profitLosses = append(m.profitLosses, copyProfitLoss(pl))
	return nil
}

func (m *Memory) ProfitLosses(ctx context.Context, chainID int64, limit int) ([]*equity.ProfitLoss, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*equity.ProfitLoss
	for _, pl := range m.profitLosses {
		if pl.ChainID == chainID {
			out = append(out, copyProfitLoss(pl))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) InsertTrade(ctx context.Context, t *equity.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, have := range m.trades {
		if have.ChainID == t.ChainID && have.Count == t.Count {
			return nil
		}
	}
	c := *t
	c.Amount = fpmath.Clone(t.Amount)
	c.Shares = fpmath.Clone(t.Shares)
	c.Price = fpmath.Clone(t.Price)
	m.trades = append(m.trades, &c)
	return nil
}

func (m *Memory) UpsertMintBurn(ctx context.Context, chainID int64, account string, merge func(*equity.MintBurn)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key2(chainID, account)
	mb, ok := m.mintBurn[k]
	if !ok {
		mb = &equity.MintBurn{ChainID: chainID, Account: account, Mint: fpmath.Zero(), Burn: fpmath.Zero()}
	}
	c := *mb
	c.Mint = fpmath.Clone(mb.Mint)
	c.Burn = fpmath.Clone(mb.Burn)
	merge(&c)
	m.mintBurn[k] = &c
	return nil
}

// --- ecosystem.Store ---

func (m *Memory) AddAccumulator(ctx context.Context, chainID int64, id string, delta *big.Int) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key2(chainID, id)
	cur, ok := m.accumulators[k]
	if !ok {
		cur = fpmath.Zero()
	}
	next := fpmath.Add(cur, delta)
	m.accumulators[k] = next
	return fpmath.Clone(next), nil
}

func (m *Memory) GetAccumulator(ctx context.Context, chainID int64, id string) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.accumulators[key2(chainID, id)]
	if !ok {
		return fpmath.Zero(), nil
	}
	return fpmath.Clone(cur), nil
}

func (m *Memory) NextSequence(ctx context.Context, chainID int64, key string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key2(chainID, key)
	m.sequences[k]++
	return m.sequences[k], nil
}

func (m *Memory) CurrentSequence(ctx context.Context, chainID int64, key string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sequences[key2(chainID, key)], nil
}

func (m *Memory) TouchActiveUser(ctx context.Context, chainID int64, account string, ts uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeUsers[key2(chainID, account)] = ts
	return nil
}

// LastActive returns the recorded last-active timestamp, zero when the
// address never interacted. Test hook.
func (m *Memory) LastActive(chainID int64, account string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeUsers[key2(chainID, account)]
}

// Trades returns a chain's trade rows in count order. Test hook.
func (m *Memory) Trades(chainID int64) []*equity.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*equity.Trade
	for _, t := range m.trades {
		if t.ChainID == chainID {
			c := *t
			c.Amount = fpmath.Clone(t.Amount)
			c.Shares = fpmath.Clone(t.Shares)
			c.Price = fpmath.Clone(t.Price)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count < out[j].Count })
	return out
}

// FindMintBurn returns an address's cumulative mint/burn row or nil. Test
// hook.
func (m *Memory) FindMintBurn(chainID int64, account string) *equity.MintBurn {
	m.mu.Lock()
	defer m.mu.Unlock()
	mb, ok := m.mintBurn[key2(chainID, account)]
	if !ok {
		return nil
	}
	c := *mb
	c.Mint = fpmath.Clone(mb.Mint)
	c.Burn = fpmath.Clone(mb.Burn)
	return &c
}

// --- analytics.Store ---

func copySnapshot(s *analytics.Snapshot) *analytics.Snapshot {
	c := *s
	c.Amount = fpmath.Clone(s.Amount)
	c.Metrics = copyMetrics(s.Metrics)
	return &c
}

func copyMetrics(m analytics.Metrics) analytics.Metrics {
	return analytics.Metrics{
		TotalInflow:         fpmath.Clone(m.TotalInflow),
		TotalOutflow:        fpmath.Clone(m.TotalOutflow),
		TotalTradeFee:       fpmath.Clone(m.TotalTradeFee),
		TotalSupply:         fpmath.Clone(m.TotalSupply),
		TotalEquity:         fpmath.Clone(m.TotalEquity),
		TotalSavings:        fpmath.Clone(m.TotalSavings),
		ShareSupply:         fpmath.Clone(m.ShareSupply),
		SharePrice:          fpmath.Clone(m.SharePrice),
		TotalMintedV1:       fpmath.Clone(m.TotalMintedV1),
		TotalMintedV2:       fpmath.Clone(m.TotalMintedV2),
		CurrentLeadRate:     fpmath.Clone(m.CurrentLeadRate),
		ClaimableInterest:   fpmath.Clone(m.ClaimableInterest),
		ProjectedInterest:   fpmath.Clone(m.ProjectedInterest),
		AnnualV1Interest:    fpmath.Clone(m.AnnualV1Interest),
		AnnualV2Interest:    fpmath.Clone(m.AnnualV2Interest),
		AnnualV1BorrowRate:  fpmath.Clone(m.AnnualV1BorrowRate),
		AnnualV2BorrowRate:  fpmath.Clone(m.AnnualV2BorrowRate),
		AnnualNetEarnings:   fpmath.Clone(m.AnnualNetEarnings),
		RealizedNetEarnings: fpmath.Clone(m.RealizedNetEarnings),
		EarningsPerShare:    fpmath.Clone(m.EarningsPerShare),
	}
}

func (m *Memory) InsertSnapshot(ctx context.Context, s *analytics.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, have := range m.snapshots {
		if have.ChainID == s.ChainID && have.Timestamp == s.Timestamp &&
			have.Kind == s.Kind && have.Sequence == s.Sequence {
			return nil
		}
	}
	m.snapshots = append(m.snapshots, copySnapshot(s))
	return nil
}

func (m *Memory) Snapshots(ctx context.Context, chainID int64, limit int) ([]*analytics.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*analytics.Snapshot
	for _, s := range m.snapshots {
		if s.ChainID == chainID {
			out = append(out, copySnapshot(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].Sequence > out[j].Sequence
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyRollup(r *analytics.DailyRollup) *analytics.DailyRollup {
	c := *r
	c.Metrics = copyMetrics(r.Metrics)
	return &c
}

func (m *Memory) UpsertRollup(ctx context.Context, r *analytics.DailyRollup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollups[key2(r.ChainID, r.Day)] = copyRollup(r)
	return nil
}

func (m *Memory) FindRollup(ctx context.Context, chainID int64, day string) (*analytics.DailyRollup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rollups[key2(chainID, day)]
	if !ok {
		return nil, nil
	}
	return copyRollup(r), nil
}

func (m *Memory) FirstRollupAtOrAfter(ctx context.Context, chainID int64, ts uint64) (*analytics.DailyRollup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *analytics.DailyRollup
	for _, r := range m.rollups {
		if r.ChainID != chainID || r.Timestamp < ts {
			continue
		}
		if best == nil || r.Timestamp < best.Timestamp {
			best = r
		}
	}
	if best == nil {
		return nil, nil
	}
	return copyRollup(best), nil
}

func (m *Memory) Rollups(ctx context.Context, chainID int64, fromDay, toDay string) ([]*analytics.DailyRollup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*analytics.DailyRollup
	for _, r := range m.rollups {
		if r.ChainID == chainID && r.Day >= fromDay && r.Day <= toDay {
			out = append(out, copyRollup(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

// --- core.AppliedSet ---

func (m *Memory) Contains(ctx context.Context, chainID int64, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied[key2(chainID, key)], nil
}

func (m *Memory) Record(ctx context.Context, chainID int64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key2(chainID, key)
	if m.applied[k] {
		return nil
	}
	m.applied[k] = true
	m.appliedOrder[chainID] = append(m.appliedOrder[chainID], key)
	return nil
}

func (m *Memory) Recent(ctx context.Context, chainID int64, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order := m.appliedOrder[chainID]
	if len(order) > limit {
		order = order[len(order)-limit:]
	}
	out := make([]string, len(order))
	copy(out, order)
	return out, nil
}

// --- core.CheckpointStore ---

func (m *Memory) SaveCheckpoint(ctx context.Context, cp *core.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *cp
	m.checkpoints[cp.ChainID] = &c
	return nil
}

func (m *Memory) LoadCheckpoint(ctx context.Context, chainID int64) (*core.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.checkpoints[chainID]
	if !ok {
		return nil, nil
	}
	c := *cp
	return &c, nil
}

// --- core.EventLog ---

func (m *Memory) AppendRecord(ctx context.Context, rec *core.LogRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, have := range m.eventLog {
		if have.ChainID == rec.ChainID && have.IdempotencyKey == rec.IdempotencyKey {
			return nil
		}
	}
	c := *rec
	c.Payload = append([]byte(nil), rec.Payload...)
	m.eventLog = append(m.eventLog, &c)
	return nil
}

func (m *Memory) PruneFrom(ctx context.Context, chainID int64, fromBlock uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.eventLog[:0]
	for _, rec := range m.eventLog {
		if rec.ChainID == chainID && rec.BlockNumber >= fromBlock {
			continue
		}
		kept = append(kept, rec)
	}
	m.eventLog = kept
	return nil
}

func (m *Memory) ScanRecords(ctx context.Context, chainID int64, fn func(*core.LogRecord) error) error {
	m.mu.Lock()
	var recs []*core.LogRecord
	for _, rec := range m.eventLog {
		if rec.ChainID == chainID {
			c := *rec
			recs = append(recs, &c)
		}
	}
	m.mu.Unlock()

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].BlockNumber != recs[j].BlockNumber {
			return recs[i].BlockNumber < recs[j].BlockNumber
		}
		if recs[i].LogIndex != recs[j].LogIndex {
			return recs[i].LogIndex < recs[j].LogIndex
		}
		return recs[i].Kind < recs[j].Kind
	})
	for _, rec := range recs {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// --- core.StateResetter ---

func (m *Memory) ResetChain(ctx context.Context, chainID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := fmt.Sprintf("%d:", chainID)
	wipe := func(keys func() []string, del func(string)) {
		for _, k := range keys() {
			if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
				del(k)
			}
		}
	}

	wipe(func() []string { return mapKeys(m.positions) }, func(k string) { delete(m.positions, k) })
	wipe(func() []string { return mapKeys(m.mintingUpdates) }, func(k string) { delete(m.mintingUpdates, k) })
	wipe(func() []string { return mapKeys(m.statusCounters) }, func(k string) { delete(m.statusCounters, k) })
	wipe(func() []string { return mapKeys(m.challenges) }, func(k string) { delete(m.challenges, k) })
	wipe(func() []string { return mapKeys(m.bids) }, func(k string) { delete(m.bids, k) })
	wipe(func() []string { return mapKeys(m.savingsStatus) }, func(k string) { delete(m.savingsStatus, k) })
	wipe(func() []string { return mapKeys(m.savingsAccounts) }, func(k string) { delete(m.savingsAccounts, k) })
	wipe(func() []string { return mapKeys(m.mintBurn) }, func(k string) { delete(m.mintBurn, k) })
	wipe(func() []string { return mapKeys(m.accumulators) }, func(k string) { delete(m.accumulators, k) })
	wipe(func() []string { return mapKeys(m.sequences) }, func(k string) { delete(m.sequences, k) })
	wipe(func() []string { return mapKeys(m.activeUsers) }, func(k string) { delete(m.activeUsers, k) })
	wipe(func() []string { return mapKeys(m.rollups) }, func(k string) { delete(m.rollups, k) })
	wipe(func() []string { return mapKeys(m.applied) }, func(k string) { delete(m.applied, k) })

	m.activities = filterByChain(m.activities, func(a *savings.Activity) int64 { return a.ChainID }, chainID)
	m.rateChanges = filterByChain(m.rateChanges, func(r *savings.RateChange) int64 { return r.ChainID }, chainID)
	m.rateProposals = filterByChain(m.rateProposals, func(r *savings.RateProposal) int64 { return r.ChainID }, chainID)
	m.profitLosses = filterByChain(m.profitLosses, func(p *equity.ProfitLoss) int64 { return p.ChainID }, chainID)
	m.trades = filterByChain(m.trades, func(t *equity.Trade) int64 { return t.ChainID }, chainID)
	m.snapshots = filterByChain(m.snapshots, func(s *analytics.Snapshot) int64 { return s.ChainID }, chainID)

	delete(m.appliedOrder, chainID)
	delete(m.checkpoints, chainID)
	return nil
}

// --- core.TxRunner ---

// memorySnapshot is a shallow copy of every collection. Valid as a
// rollback point because no mutator ever edits a stored row in place:
// upserts replace the map entry with a fresh copy and list writes only
// append, so rows reachable from the snapshot never change under it.
type memorySnapshot struct {
	positions      map[string]*position.Position
	mintingUpdates map[string]*position.MintingUpdate
	statusCounters map[string]*position.StatusCounters

	challenges map[string]*auction.Challenge
	bids       map[string]*auction.Bid

	savingsStatus   map[string]*savings.Status
	savingsAccounts map[string]*savings.Account
	activities      []*savings.Activity
	rateChanges     []*savings.RateChange
	rateProposals   []*savings.RateProposal

	profitLosses []*equity.ProfitLoss
	trades       []*equity.Trade
	mintBurn     map[string]*equity.MintBurn

	accumulators map[string]*big.Int
	sequences    map[string]uint64
	activeUsers  map[string]uint64

	snapshots []*analytics.Snapshot
	rollups   map[string]*analytics.DailyRollup

	applied      map[string]bool
	appliedOrder map[int64][]string
	checkpoints  map[int64]*core.Checkpoint
	eventLog     []*core.LogRecord
}

func (m *Memory) snapshot() *memorySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &memorySnapshot{
		positions:       maps.Clone(m.positions),
		mintingUpdates:  maps.Clone(m.mintingUpdates),
		statusCounters:  maps.Clone(m.statusCounters),
		challenges:      maps.Clone(m.challenges),
		bids:            maps.Clone(m.bids),
		savingsStatus:   maps.Clone(m.savingsStatus),
		savingsAccounts: maps.Clone(m.savingsAccounts),
		activities:      m.activities,
		rateChanges:     m.rateChanges,
		rateProposals:   m.rateProposals,
		profitLosses:    m.profitLosses,
		trades:          m.trades,
		mintBurn:        maps.Clone(m.mintBurn),
		accumulators:    maps.Clone(m.accumulators),
		sequences:       maps.Clone(m.sequences),
		activeUsers:     maps.Clone(m.activeUsers),
		snapshots:       m.snapshots,
		rollups:         maps.Clone(m.rollups),
		applied:         maps.Clone(m.applied),
		appliedOrder:    maps.Clone(m.appliedOrder),
		checkpoints:     maps.Clone(m.checkpoints),
		eventLog:        m.eventLog,
	}
}

func (m *Memory) restore(s *memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = s.positions
	m.mintingUpdates = s.mintingUpdates
	m.statusCounters = s.statusCounters
	m.challenges = s.challenges
	m.bids = s.bids
	m.savingsStatus = s.savingsStatus
	m.savingsAccounts = s.savingsAccounts
	m.activities = s.activities
	m.rateChanges = s.rateChanges
	m.rateProposals = s.rateProposals
	m.profitLosses = s.profitLosses
	m.trades = s.trades
	m.mintBurn = s.mintBurn
	m.accumulators = s.accumulators
	m.sequences = s.sequences
	m.activeUsers = s.activeUsers
	m.snapshots = s.snapshots
	m.rollups = s.rollups
	m.applied = s.applied
	m.appliedOrder = s.appliedOrder
	m.checkpoints = s.checkpoints
	m.eventLog = s.eventLog
}

// Within runs fn atomically: any error restores the pre-call snapshot,
// leaving no partial writes behind. Concurrent Within calls serialize
// so a restore never clobbers another unit's writes. Writes issued
// outside any unit while a failing unit is open are rolled back with
// it; callers that need cross-goroutine isolation use Postgres, where
// the transaction is connection-scoped.
func (m *Memory) Within(ctx context.Context, fn func(context.Context) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	snap := m.snapshot()
	if err := fn(ctx); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func mapKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func filterByChain[T any](in []T, chainOf func(T) int64, chainID int64) []T {
	out := in[:0]
	for _, v := range in {
		if chainOf(v) != chainID {
			out = append(out, v)
		}
	}
	return out
}
