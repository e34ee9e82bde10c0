package catalog

import (
	"context"

	"github.com/fiskpoint/posengine/store/dbtx"
)

// Repository is the C1 typed-CRUD surface over the catalog tree. Every
// method accepts an optional transactional handle (spec §4.1): when tx is
// non-nil the call executes within it, otherwise against the pool.
type Repository interface {
	FindCompany(ctx context.Context, tx *dbtx.Handle, id CompanyID) (*Company, error)
	FindBranch(ctx context.Context, tx *dbtx.Handle, id BranchID) (*Branch, error)
	FindPOSDevice(ctx context.Context, tx *dbtx.Handle, id POSDeviceID) (*POSDevice, error)

	CreateCategory(ctx context.Context, tx *dbtx.Handle, c Category) (Category, error)
	FindCategory(ctx context.Context, tx *dbtx.Handle, id CategoryID) (*Category, error)
	ListCategories(ctx context.Context, tx *dbtx.Handle, device POSDeviceID) ([]Category, error)

	CreateItem(ctx context.Context, tx *dbtx.Handle, it Item) (Item, error)
	FindItem(ctx context.Context, tx *dbtx.Handle, id ItemID) (*Item, error)
	ListItemsByCategory(ctx context.Context, tx *dbtx.Handle, cat CategoryID) ([]Item, error)
	ListAllItems(ctx context.Context, tx *dbtx.Handle) ([]Item, error)
	UpdateItemEmbeddingHash(ctx context.Context, tx *dbtx.Handle, id ItemID, semanticHash string) error

	CreateUser(ctx context.Context, tx *dbtx.Handle, u User) (User, error)
	FindUser(ctx context.Context, tx *dbtx.Handle, id UserID) (*User, error)
	FindUserByUsername(ctx context.Context, tx *dbtx.Handle, username string) (*User, error)
	UpdateUser(ctx context.Context, tx *dbtx.Handle, u User) error
	ListUsersByRole(ctx context.Context, tx *dbtx.Handle, role RoleID) ([]User, error)
	// ListAllUsers backs the dispatcher's getLoginUsers command (operator
	// picker screen, spec §4.6 command set), independent of role.
	ListAllUsers(ctx context.Context, tx *dbtx.Handle) ([]User, error)
	ResetAllStornoUsedToday(ctx context.Context, tx *dbtx.Handle) error

	CreateRole(ctx context.Context, tx *dbtx.Handle, r Role) (Role, error)
	FindRole(ctx context.Context, tx *dbtx.Handle, id RoleID) (*Role, error)
	ListAdminRoles(ctx context.Context, tx *dbtx.Handle) ([]Role, error)

	// DeleteCatalogTree removes vec-items/items/categories/pos-devices/
	// branches/companies in referential order and resets identity
	// sequences, for importer's atomic replace (spec §4.8 step 1).
	DeleteCatalogTree(ctx context.Context, tx *dbtx.Handle) error
	CreateCompany(ctx context.Context, tx *dbtx.Handle, c Company) (Company, error)
	CreateBranch(ctx context.Context, tx *dbtx.Handle, b Branch) (Branch, error)
	CreatePOSDevice(ctx context.Context, tx *dbtx.Handle, d POSDevice) (POSDevice, error)

	// WithTx runs fn inside a serializable write envelope, used by the
	// importer's atomic catalog replace (spec §4.8 step 1).
	WithTx(ctx context.Context, fn func(h *dbtx.Handle) error) error
}
