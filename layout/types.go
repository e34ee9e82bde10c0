/*
Package layout implements Layout Versioning (C10): named snapshots of a
POS device's category/item arrangement, with a single-active-row invariant.

Grounded on generic/store.go's TxStore.WithTx atomic-multi-write pattern
(deactivate-then-activate inside one envelope).
*/
package layout

import "time"

type LayoutID int64

// Layout is a saved arrangement snapshot (spec §3/§4.10).
type Layout struct {
	ID                LayoutID
	Name              string
	CategoriesSnapshot []byte // opaque JSON snapshot, stored verbatim
	SourceType        string
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
