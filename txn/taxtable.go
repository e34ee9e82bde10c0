/*
taxtable.go - externalized category_type -> tax-rate mapping.

The source the spec distills from hard-codes drink=19%/other=7% inline in
the engine while declaring richer tax tables elsewhere (spec §9 Design
Notes, Open Question). This implementation externalizes the mapping to a
TOML file, loaded once at engine construction and hot-reloaded via
fsnotify, per the spec's own recommendation ("a dedicated small table or
strategy chosen at engine construction time").

Grounded on msto63-mDW's BurntSushi/toml-based configuration loading.
*/
package txn

import (
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fiskpoint/posengine/catalog"
)

// TaxTable maps a category type to its percentage tax rate.
type TaxTable struct {
	mu     sync.RWMutex
	rates  map[catalog.CategoryType]decimal.Decimal
	log    zerolog.Logger
	watcher *fsnotify.Watcher
}

// DefaultTaxTable is the spec's default two-rate mapping: drink=19%,
// everything else 7%. Used when no TOML file is configured.
func DefaultTaxTable(log zerolog.Logger) *TaxTable {
	return &TaxTable{
		rates: map[catalog.CategoryType]decimal.Decimal{
			catalog.CategoryDrink: decimal.NewFromInt(19),
			catalog.CategoryFood:  decimal.NewFromInt(7),
			catalog.CategoryOther: decimal.NewFromInt(7),
		},
		log: log,
	}
}

type taxTableFile struct {
	Rates map[string]float64 `toml:"rates"`
}

// LoadTaxTable reads a TOML file of the form:
//
//	[rates]
//	food  = 7.0
//	drink = 19.0
//	other = 7.0
//
// and watches it for changes, reloading atomically on write. Falls back to
// DefaultTaxTable if path is empty.
func LoadTaxTable(path string, log zerolog.Logger) (*TaxTable, error) {
	if path == "" {
		return DefaultTaxTable(log), nil
	}

	t := &TaxTable{rates: map[catalog.CategoryType]decimal.Decimal{}, log: log}
	if err := t.reload(path); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn().Err(err).Msg("tax table: fsnotify unavailable, hot-reload disabled")
		return t, nil
	}
	if err := watcher.Add(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("tax table: failed to watch file")
		watcher.Close()
		return t, nil
	}
	t.watcher = watcher

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := t.reload(path); err != nil {
						log.Warn().Err(err).Msg("tax table: reload failed, keeping previous table")
					} else {
						log.Info().Str("path", path).Msg("tax table: reloaded")
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("tax table: watcher error")
			}
		}
	}()

	return t, nil
}

func (t *TaxTable) reload(path string) error {
	var f taxTableFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return err
	}
	rates := make(map[catalog.CategoryType]decimal.Decimal, len(f.Rates))
	for k, v := range f.Rates {
		rates[catalog.CategoryType(k)] = decimal.NewFromFloat(v)
	}
	t.mu.Lock()
	t.rates = rates
	t.mu.Unlock()
	return nil
}

// RateFor returns the percentage rate for a category type, defaulting to
// 7% (the spec's "otherwise" bucket) when the type is unmapped.
func (t *TaxTable) RateFor(ct catalog.CategoryType) decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if r, ok := t.rates[ct]; ok {
		return r
	}
	if r, ok := t.rates[catalog.CategoryOther]; ok {
		return r
	}
	return decimal.NewFromInt(7)
}

// Close stops the fsnotify watcher, if any.
func (t *TaxTable) Close() {
	if t.watcher != nil {
		t.watcher.Close()
	}
}
