package txn

import (
	"context"

	"github.com/rs/zerolog"
)

// LoggingPrinter stands in for the out-of-scope receipt-printer
// collaborator (spec §1): it never fails, just logs what would have been
// sent to hardware. Swap in a real network/serial printer client without
// touching Engine.
type LoggingPrinter struct {
	Log zerolog.Logger
}

func (p LoggingPrinter) Print(ctx context.Context, t ActiveTransaction, items []ActiveTransactionItem) error {
	p.Log.Debug().Str("transaction_uuid", t.UUID).Int("line_count", len(items)).Msg("printer: would print receipt")
	return nil
}
