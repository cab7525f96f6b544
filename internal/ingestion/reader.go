package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/nats-io/nats.go"

	"StableLedger/internal/chainread"
	"StableLedger/internal/observability"
)

// ChainReader answers contract reads over NATS request-reply. The
// upstream indexer owns the RPC connections and serves point-in-time
// view-function reads on chain.<id>.read. Transport failures are marked
// retryable so the dispatcher NAKs instead of halting.
type ChainReader struct {
	nc      *nats.Conn
	metrics *observability.Metrics
}

func NewChainReader(nc *nats.Conn, m *observability.Metrics) *ChainReader {
	return &ChainReader{nc: nc, metrics: m}
}

type readRequestJSON struct {
	Contract    string `json:"contract"`
	Function    string `json:"function"`
	Args        []any  `json:"args,omitempty"`
	BlockHeight uint64 `json:"block_height,omitempty"`
}

type readResponseJSON struct {
	Error string `json:"error,omitempty"`

	// Exactly one of the value fields is set, matching the ABI return
	// type of the function read.
	Big    string `json:"big,omitempty"`
	Uint64 uint64 `json:"uint64,omitempty"`
	Int64  int64  `json:"int64,omitempty"`
	Text   string `json:"text,omitempty"`
	Bool   bool   `json:"bool,omitempty"`
}

func (r *ChainReader) Read(ctx context.Context, q chainread.Query) (chainread.Value, error) {
	r.metrics.ContractReads.WithLabelValues(q.Function).Inc()

	payload, err := json.Marshal(readRequestJSON{
		Contract:    q.Contract,
		Function:    q.Function,
		Args:        q.Args,
		BlockHeight: q.BlockHeight,
	})
	if err != nil {
		return chainread.Value{}, fmt.Errorf("encode read request: %w", err)
	}

	subject := fmt.Sprintf("chain.%d.read", q.ChainID)
	msg, err := r.nc.RequestWithContext(ctx, subject, payload)
	if err != nil {
		r.metrics.ContractReadFails.WithLabelValues(q.Function).Inc()
		return chainread.Value{}, chainread.AsRetryable(fmt.Errorf("read request %s: %w", subject, err))
	}

	var resp readResponseJSON
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		r.metrics.ContractReadFails.WithLabelValues(q.Function).Inc()
		return chainread.Value{}, fmt.Errorf("decode read response: %w", err)
	}
	if resp.Error != "" {
		r.metrics.ContractReadFails.WithLabelValues(q.Function).Inc()
		return chainread.Value{}, fmt.Errorf("read %s.%s: %s", q.Contract, q.Function, resp.Error)
	}

	v := chainread.Value{
		Uint64: resp.Uint64,
		Int64:  resp.Int64,
		Text:   resp.Text,
		Bool:   resp.Bool,
	}
	if resp.Big != "" {
		b, ok := new(big.Int).SetString(resp.Big, 10)
		if !ok {
			return chainread.Value{}, fmt.Errorf("read %s.%s: bad numeric return %q", q.Contract, q.Function, resp.Big)
		}
		v.Big = b
	}
	return v, nil
}
