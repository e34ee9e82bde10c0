package recovery

import (
	"context"
	"os"

	"github.com/fiskpoint/posengine/ferrors"
)

// EnvPrinterConfigLoader reads the (out-of-scope) printer collaborator's
// connection settings from the environment, per spec §4.5 step 5's
// best-effort contract: a missing PRINTER_ENDPOINT is reported, never
// fatal.
type EnvPrinterConfigLoader struct{}

func (EnvPrinterConfigLoader) Load(ctx context.Context) (PrinterConfig, error) {
	endpoint := os.Getenv("PRINTER_ENDPOINT")
	if endpoint == "" {
		return PrinterConfig{}, ferrors.New(ferrors.NotFound, "PRINTER_ENDPOINT is not configured")
	}
	return PrinterConfig{Endpoint: endpoint, Profile: os.Getenv("PRINTER_PROFILE")}, nil
}
