package ingestion

import (
	"encoding/json"
	"fmt"
	"math/big"

	"StableLedger/internal/event"
)

// Decode converts a JSON payload into a typed event. The kind string is
// carried out of band, in the message subject on the live path and in the
// event-log row during replay, so the same codec serves both.
func Decode(kind string, data []byte) (event.Event, error) {
	switch kind {
	case "PositionOpened":
		return decodePositionOpened(data)
	case "MintingUpdated":
		return decodeMintingUpdated(data)
	case "PositionDenied":
		return decodePositionDenied(data)
	case "OwnershipTransferred":
		return decodeOwnershipTransferred(data)
	case "ChallengeStarted":
		return decodeChallengeStarted(data)
	case "ChallengeAverted":
		return decodeChallengeAverted(data)
	case "ChallengeSucceeded":
		return decodeChallengeSucceeded(data)
	case "SavingsSaved":
		return decodeSavingsSaved(data)
	case "SavingsInterestCollected":
		return decodeSavingsInterestCollected(data)
	case "SavingsWithdrawn":
		return decodeSavingsWithdrawn(data)
	case "RateChanged":
		return decodeRateChanged(data)
	case "RateProposed":
		return decodeRateProposed(data)
	case "EquityProfit":
		return decodeEquityProfit(data)
	case "EquityLoss":
		return decodeEquityLoss(data)
	case "EquityTrade":
		return decodeEquityTrade(data)
	case "TokenMint":
		return decodeTokenMint(data)
	case "TokenBurn":
		return decodeTokenBurn(data)
	default:
		return nil, fmt.Errorf("unknown event kind: %s", kind)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match the upstream chain indexer. Amounts
// travel as decimal strings; JSON numbers cannot carry 256-bit values.

type envelopeJSON struct {
	ChainID        int64  `json:"chain_id"`
	BlockNumber    uint64 `json:"block_number"`
	BlockTimestamp uint64 `json:"block_timestamp"`
	TxHash         string `json:"tx_hash"`
	TxFrom         string `json:"tx_from"`
	LogIndex       uint32 `json:"log_index"`
	Contract       string `json:"contract"`
}

func (j envelopeJSON) envelope() event.Envelope {
	return event.Envelope{
		ChainID:        j.ChainID,
		BlockNumber:    j.BlockNumber,
		BlockTimestamp: j.BlockTimestamp,
		TxHash:         j.TxHash,
		TxFrom:         j.TxFrom,
		LogIndex:       j.LogIndex,
		Contract:       j.Contract,
	}
}

func parseAmount(field, s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("parse %s: not a decimal integer: %q", field, s)
	}
	return v, nil
}

func parseGeneration(g int32) (event.Generation, error) {
	switch event.Generation(g) {
	case event.GenerationV1, event.GenerationV2:
		return event.Generation(g), nil
	default:
		return 0, fmt.Errorf("unknown generation: %d", g)
	}
}

type positionOpenedJSON struct {
	envelopeJSON
	Generation int32  `json:"generation"`
	Position   string `json:"position"`
	Owner      string `json:"owner"`
	DebtToken  string `json:"debt_token"`
	Collateral string `json:"collateral"`
	Price      string `json:"price"`
	TxInput    string `json:"tx_input"`
}

func decodePositionOpened(data []byte) (*event.PositionOpened, error) {
	var j positionOpenedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode PositionOpened: %w", err)
	}
	gen, err := parseGeneration(j.Generation)
	if err != nil {
		return nil, err
	}
	price, err := parseAmount("price", j.Price)
	if err != nil {
		return nil, err
	}
	return &event.PositionOpened{
		Envelope:   j.envelope(),
		Generation: gen,
		Position:   j.Position,
		Owner:      j.Owner,
		DebtToken:  j.DebtToken,
		Collateral: j.Collateral,
		Price:      price,
		TxInput:    j.TxInput,
	}, nil
}

type mintingUpdatedJSON struct {
	envelopeJSON
	Generation int32  `json:"generation"`
	Position   string `json:"position"`
	Collateral string `json:"collateral"`
	Price      string `json:"price"`
	Minted     string `json:"minted"`
	Limit      string `json:"limit,omitempty"`
}

func decodeMintingUpdated(data []byte) (*event.MintingUpdated, error) {
	var j mintingUpdatedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode MintingUpdated: %w", err)
	}
	gen, err := parseGeneration(j.Generation)
	if err != nil {
		return nil, err
	}
	collateral, err := parseAmount("collateral", j.Collateral)
	if err != nil {
		return nil, err
	}
	price, err := parseAmount("price", j.Price)
	if err != nil {
		return nil, err
	}
	minted, err := parseAmount("minted", j.Minted)
	if err != nil {
		return nil, err
	}
	e := &event.MintingUpdated{
		Envelope:   j.envelope(),
		Generation: gen,
		Position:   j.Position,
		Collateral: collateral,
		Price:      price,
		Minted:     minted,
	}
	if j.Limit != "" {
		limit, err := parseAmount("limit", j.Limit)
		if err != nil {
			return nil, err
		}
		e.Limit = limit
	}
	return e, nil
}

type positionDeniedJSON struct {
	envelopeJSON
	Generation int32  `json:"generation"`
	Position   string `json:"position"`
	Message    string `json:"message"`
}

func decodePositionDenied(data []byte) (*event.PositionDenied, error) {
	var j positionDeniedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode PositionDenied: %w", err)
	}
	gen, err := parseGeneration(j.Generation)
	if err != nil {
		return nil, err
	}
	return &event.PositionDenied{
		Envelope:   j.envelope(),
		Generation: gen,
		Position:   j.Position,
		Message:    j.Message,
	}, nil
}

type ownershipTransferredJSON struct {
	envelopeJSON
	Generation int32  `json:"generation"`
	Position   string `json:"position"`
	NewOwner   string `json:"new_owner"`
}

func decodeOwnershipTransferred(data []byte) (*event.OwnershipTransferred, error) {
	var j ownershipTransferredJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode OwnershipTransferred: %w", err)
	}
	gen, err := parseGeneration(j.Generation)
	if err != nil {
		return nil, err
	}
	return &event.OwnershipTransferred{
		Envelope:   j.envelope(),
		Generation: gen,
		Position:   j.Position,
		NewOwner:   j.NewOwner,
	}, nil
}

type challengeStartedJSON struct {
	envelopeJSON
	Generation int32  `json:"generation"`
	Position   string `json:"position"`
	Challenger string `json:"challenger"`
	Number     uint64 `json:"number"`
	Size       string `json:"size"`
}

func decodeChallengeStarted(data []byte) (*event.ChallengeStarted, error) {
	var j challengeStartedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode ChallengeStarted: %w", err)
	}
	gen, err := parseGeneration(j.Generation)
	if err != nil {
		return nil, err
	}
	size, err := parseAmount("size", j.Size)
	if err != nil {
		return nil, err
	}
	return &event.ChallengeStarted{
		Envelope:   j.envelope(),
		Generation: gen,
		Position:   j.Position,
		Challenger: j.Challenger,
		Number:     j.Number,
		Size:       size,
	}, nil
}

type challengeAvertedJSON struct {
	envelopeJSON
	Generation int32  `json:"generation"`
	Position   string `json:"position"`
	Number     uint64 `json:"number"`
	Size       string `json:"size"`
}

func decodeChallengeAverted(data []byte) (*event.ChallengeAverted, error) {
	var j challengeAvertedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode ChallengeAverted: %w", err)
	}
	gen, err := parseGeneration(j.Generation)
	if err != nil {
		return nil, err
	}
	size, err := parseAmount("size", j.Size)
	if err != nil {
		return nil, err
	}
	return &event.ChallengeAverted{
		Envelope:   j.envelope(),
		Generation: gen,
		Position:   j.Position,
		Number:     j.Number,
		Size:       size,
	}, nil
}

type challengeSucceededJSON struct {
	envelopeJSON
	Generation         int32  `json:"generation"`
	Position           string `json:"position"`
	Number             uint64 `json:"number"`
	Bid                string `json:"bid"`
	AcquiredCollateral string `json:"acquired_collateral"`
	ChallengeSize      string `json:"challenge_size"`
}

func decodeChallengeSucceeded(data []byte) (*event.ChallengeSucceeded, error) {
	var j challengeSucceededJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode ChallengeSucceeded: %w", err)
	}
	gen, err := parseGeneration(j.Generation)
	if err != nil {
		return nil, err
	}
	bid, err := parseAmount("bid", j.Bid)
	if err != nil {
		return nil, err
	}
	acquired, err := parseAmount("acquired_collateral", j.AcquiredCollateral)
	if err != nil {
		return nil, err
	}
	size, err := parseAmount("challenge_size", j.ChallengeSize)
	if err != nil {
		return nil, err
	}
	return &event.ChallengeSucceeded{
		Envelope:           j.envelope(),
		Generation:         gen,
		Position:           j.Position,
		Number:             j.Number,
		Bid:                bid,
		AcquiredCollateral: acquired,
		ChallengeSize:      size,
	}, nil
}

type savingsAmountJSON struct {
	envelopeJSON
	Module  string `json:"module"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

func decodeSavingsSaved(data []byte) (*event.SavingsSaved, error) {
	var j savingsAmountJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode SavingsSaved: %w", err)
	}
	amount, err := parseAmount("amount", j.Amount)
	if err != nil {
		return nil, err
	}
	return &event.SavingsSaved{
		Envelope: j.envelope(),
		Module:   j.Module,
		Account:  j.Account,
		Amount:   amount,
	}, nil
}

type savingsInterestJSON struct {
	envelopeJSON
	Module   string `json:"module"`
	Account  string `json:"account"`
	Interest string `json:"interest"`
}

func decodeSavingsInterestCollected(data []byte) (*event.SavingsInterestCollected, error) {
	var j savingsInterestJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode SavingsInterestCollected: %w", err)
	}
	interest, err := parseAmount("interest", j.Interest)
	if err != nil {
		return nil, err
	}
	return &event.SavingsInterestCollected{
		Envelope: j.envelope(),
		Module:   j.Module,
		Account:  j.Account,
		Interest: interest,
	}, nil
}

func decodeSavingsWithdrawn(data []byte) (*event.SavingsWithdrawn, error) {
	var j savingsAmountJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode SavingsWithdrawn: %w", err)
	}
	amount, err := parseAmount("amount", j.Amount)
	if err != nil {
		return nil, err
	}
	return &event.SavingsWithdrawn{
		Envelope: j.envelope(),
		Module:   j.Module,
		Account:  j.Account,
		Amount:   amount,
	}, nil
}

type rateChangedJSON struct {
	envelopeJSON
	Module     string `json:"module"`
	NewRatePPM int64  `json:"new_rate_ppm"`
}

func decodeRateChanged(data []byte) (*event.RateChanged, error) {
	var j rateChangedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode RateChanged: %w", err)
	}
	return &event.RateChanged{
		Envelope:   j.envelope(),
		Module:     j.Module,
		NewRatePPM: j.NewRatePPM,
	}, nil
}

type rateProposedJSON struct {
	envelopeJSON
	Module      string `json:"module"`
	Proposer    string `json:"proposer"`
	NextRatePPM int64  `json:"next_rate_ppm"`
	NextChange  uint64 `json:"next_change"`
}

func decodeRateProposed(data []byte) (*event.RateProposed, error) {
	var j rateProposedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode RateProposed: %w", err)
	}
	return &event.RateProposed{
		Envelope:    j.envelope(),
		Module:      j.Module,
		Proposer:    j.Proposer,
		NextRatePPM: j.NextRatePPM,
		NextChange:  j.NextChange,
	}, nil
}

type equityProfitLossJSON struct {
	envelopeJSON
	Minter string `json:"minter"`
	Amount string `json:"amount"`
}

func decodeEquityProfit(data []byte) (*event.EquityProfit, error) {
	var j equityProfitLossJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode EquityProfit: %w", err)
	}
	amount, err := parseAmount("amount", j.Amount)
	if err != nil {
		return nil, err
	}
	return &event.EquityProfit{
		Envelope: j.envelope(),
		Minter:   j.Minter,
		Amount:   amount,
	}, nil
}

func decodeEquityLoss(data []byte) (*event.EquityLoss, error) {
	var j equityProfitLossJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode EquityLoss: %w", err)
	}
	amount, err := parseAmount("amount", j.Amount)
	if err != nil {
		return nil, err
	}
	return &event.EquityLoss{
		Envelope: j.envelope(),
		Minter:   j.Minter,
		Amount:   amount,
	}, nil
}

type equityTradeJSON struct {
	envelopeJSON
	Trader   string `json:"trader"`
	Amount   string `json:"amount"`
	Shares   string `json:"shares"`
	NewPrice string `json:"new_price"`
}

func decodeEquityTrade(data []byte) (*event.EquityTrade, error) {
	var j equityTradeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode EquityTrade: %w", err)
	}
	amount, err := parseAmount("amount", j.Amount)
	if err != nil {
		return nil, err
	}
	shares, err := parseAmount("shares", j.Shares)
	if err != nil {
		return nil, err
	}
	price, err := parseAmount("new_price", j.NewPrice)
	if err != nil {
		return nil, err
	}
	return &event.EquityTrade{
		Envelope: j.envelope(),
		Trader:   j.Trader,
		Amount:   amount,
		Shares:   shares,
		NewPrice: price,
	}, nil
}

type tokenMintJSON struct {
	envelopeJSON
	To    string `json:"to"`
	Value string `json:"value"`
}

func decodeTokenMint(data []byte) (*event.TokenMint, error) {
	var j tokenMintJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode TokenMint: %w", err)
	}
	value, err := parseAmount("value", j.Value)
	if err != nil {
		return nil, err
	}
	return &event.TokenMint{
		Envelope: j.envelope(),
		To:       j.To,
		Value:    value,
	}, nil
}

type tokenBurnJSON struct {
	envelopeJSON
	From  string `json:"from"`
	Value string `json:"value"`
}

func decodeTokenBurn(data []byte) (*event.TokenBurn, error) {
	var j tokenBurnJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode TokenBurn: %w", err)
	}
	value, err := parseAmount("value", j.Value)
	if err != nil {
		return nil, err
	}
	return &event.TokenBurn{
		Envelope: j.envelope(),
		From:     j.From,
		Value:    value,
	}, nil
}
