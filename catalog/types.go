/*
Package catalog holds the static entity tree the POS sells against:
Company -> Branch -> POSDevice -> (Category, Item), plus the User/Role
principals that operate the system.

PURPOSE:
  Domain-agnostic types only; persistence lives in store/sqlite, business
  rules (tax selection, storno limits) live in txn/storno. This mirrors the
  teacher's split between generic/types.go (pure types) and
  store/sqlite/sqlite.go (persistence).

JSON NORMALIZATION:
  DisplayName and Permissions are modeled as native Go maps/sets here; the
  repository layer (store/sqlite) is responsible for the read/write JSON
  normalization the spec requires (string vs object across storage
  engines) - callers of this package never see raw JSON.

SEE ALSO:
  - repo.go: repository interfaces (C1)
  - store/sqlite: concrete SQLite-backed implementation
*/
package catalog

import (
	"database/sql/driver"
	"fmt"
	"time"
)

type CompanyID string
type BranchID string
type POSDeviceID string
type CategoryID string
type ItemID string
type UserID string
type RoleID string

// Scan implements sql.Scanner so these opaque string IDs can be read back
// directly from an INTEGER PRIMARY KEY AUTOINCREMENT column: the storage
// layer's identity is numeric, the domain's is an opaque string (spec §3
// treats every *ID as opaque), and this is the seam between them.
func (id *CompanyID) Scan(src any) error    { return scanID(src, (*string)(id)) }
func (id *BranchID) Scan(src any) error     { return scanID(src, (*string)(id)) }
func (id *POSDeviceID) Scan(src any) error  { return scanID(src, (*string)(id)) }
func (id *CategoryID) Scan(src any) error   { return scanID(src, (*string)(id)) }
func (id *ItemID) Scan(src any) error       { return scanID(src, (*string)(id)) }
func (id *UserID) Scan(src any) error       { return scanID(src, (*string)(id)) }
func (id *RoleID) Scan(src any) error       { return scanID(src, (*string)(id)) }

func (id CompanyID) Value() (driver.Value, error)   { return valueID(string(id)) }
func (id BranchID) Value() (driver.Value, error)    { return valueID(string(id)) }
func (id POSDeviceID) Value() (driver.Value, error) { return valueID(string(id)) }
func (id CategoryID) Value() (driver.Value, error)  { return valueID(string(id)) }
func (id ItemID) Value() (driver.Value, error)      { return valueID(string(id)) }
func (id UserID) Value() (driver.Value, error)      { return valueID(string(id)) }
func (id RoleID) Value() (driver.Value, error)      { return valueID(string(id)) }

func scanID(src any, dst *string) error {
	switch v := src.(type) {
	case int64:
		*dst = fmt.Sprintf("%d", v)
	case string:
		*dst = v
	case []byte:
		*dst = string(v)
	case nil:
		*dst = ""
	default:
		return fmt.Errorf("unsupported id source type %T", src)
	}
	return nil
}

// valueID lets an empty ID bind as SQL NULL (used for optional foreign
// keys like PendingChange fields elsewhere) while a populated ID binds as
// its string form, which SQLite's INTEGER column affinity stores as an
// integer when the text is numeric.
func valueID(s string) (driver.Value, error) {
	if s == "" {
		return nil, nil
	}
	return s, nil
}

// CategoryType selects the default tax-rate bucket (spec §3, §4.3).
type CategoryType string

const (
	CategoryFood  CategoryType = "food"
	CategoryDrink CategoryType = "drink"
	CategoryOther CategoryType = "other"
)

// DisplayNames maps a BCP-47-ish language tag to a localized string.
type DisplayNames map[string]string

type AuditRecord struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Company struct {
	ID   CompanyID
	Name string
	AuditRecord
}

type Branch struct {
	ID        BranchID
	CompanyID CompanyID
	Name      string
	AuditRecord
}

type POSDevice struct {
	ID       POSDeviceID
	BranchID BranchID
	Name     string
	AuditRecord
}

type Category struct {
	ID           CategoryID
	POSDeviceID  POSDeviceID
	DisplayName  DisplayNames
	CategoryType CategoryType
	AuditRecord
}

// Item is a sellable catalog entry. Price is stored and returned as a
// decimal string; callers parse it with money.NewFromString.
type Item struct {
	ID          ItemID
	POSDeviceID POSDeviceID
	CategoryID  CategoryID
	DisplayName DisplayNames
	PriceCents  string // decimal string, see money.NewFromString
	Description string
	AuditRecord
}

// Role carries capability tokens and the approve/manage-users flags. It
// has no storno policy fields: storno_daily_limit/storno_emergency_limit
// are stored per User only.
type Role struct {
	ID                RoleID
	Name              string
	Permissions       map[string]bool
	CanApproveChanges bool
	CanManageUsers    bool
}

type User struct {
	ID                   UserID
	Username             string
	PasswordHash         string
	RoleID               RoleID
	StornoDailyLimit     string // decimal string
	StornoEmergencyLimit string
	StornoUsedToday      string
	TrustScore           float64 // clamped [0,100]; half-point adjustments occur on storno approval
	IsActive             bool
	ForcePasswordChange  bool
	AuditRecord
}

// HasPermission reports whether a role token is present. Used by the
// dispatcher's checkPermission/canPerformAction commands.
func (r Role) HasPermission(token string) bool {
	return r.Permissions[token]
}
