/*
catalog.go adapts *Store to catalog.Repository: the typed-CRUD surface
over companies/branches/pos_devices/categories/items/roles/users.

JSON normalization lives here per catalog/types.go's contract: DisplayNames
and Role.Permissions are native maps in the catalog package, marshaled to
TEXT columns at this boundary.
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	"github.com/fiskpoint/posengine/catalog"
	"github.com/fiskpoint/posengine/store/dbtx"
)

// CatalogRepo implements catalog.Repository.
type CatalogRepo struct{ *Store }

func NewCatalogRepo(s *Store) *CatalogRepo { return &CatalogRepo{s} }

func (r *CatalogRepo) q(tx *dbtx.Handle) dbtx.Querier { return tx.Or(r.pool()) }

func (r *CatalogRepo) FindCompany(ctx context.Context, tx *dbtx.Handle, id catalog.CompanyID) (*catalog.Company, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT id, name, created_at, updated_at FROM companies WHERE id = ?`, id)
	var c catalog.Company
	var created, updated string
	if err := row.Scan(&c.ID, &c.Name, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, created)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &c, nil
}

func (r *CatalogRepo) FindBranch(ctx context.Context, tx *dbtx.Handle, id catalog.BranchID) (*catalog.Branch, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT id, company_id, name, created_at, updated_at FROM branches WHERE id = ?`, id)
	var b catalog.Branch
	var created, updated string
	if err := row.Scan(&b.ID, &b.CompanyID, &b.Name, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339, created)
	b.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &b, nil
}

func (r *CatalogRepo) FindPOSDevice(ctx context.Context, tx *dbtx.Handle, id catalog.POSDeviceID) (*catalog.POSDevice, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT id, branch_id, name, created_at, updated_at FROM pos_devices WHERE id = ?`, id)
	var d catalog.POSDevice
	var created, updated string
	if err := row.Scan(&d.ID, &d.BranchID, &d.Name, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339, created)
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &d, nil
}

func (r *CatalogRepo) CreateCategory(ctx context.Context, tx *dbtx.Handle, c catalog.Category) (catalog.Category, error) {
	displayJSON, err := json.Marshal(c.DisplayName)
	if err != nil {
		return catalog.Category{}, err
	}
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO categories (pos_device_id, display_name, category_type, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		c.POSDeviceID, string(displayJSON), string(c.CategoryType), c.CreatedAt.UTC().Format(time.RFC3339), c.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return catalog.Category{}, err
	}
	id, _ := res.LastInsertId()
	c.ID = catalog.CategoryID(formatID(id))
	return c, nil
}

func (r *CatalogRepo) FindCategory(ctx context.Context, tx *dbtx.Handle, id catalog.CategoryID) (*catalog.Category, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT id, pos_device_id, display_name, category_type, created_at, updated_at FROM categories WHERE id = ?`, id)
	return r.scanCategory(row)
}

func (r *CatalogRepo) ListCategories(ctx context.Context, tx *dbtx.Handle, device catalog.POSDeviceID) ([]catalog.Category, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id, pos_device_id, display_name, category_type, created_at, updated_at FROM categories WHERE pos_device_id = ? ORDER BY id`, device)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []catalog.Category
	for rows.Next() {
		c, err := r.scanCategoryRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *CatalogRepo) scanCategory(row *sql.Row) (*catalog.Category, error) {
	var c catalog.Category
	var displayJSON, created, updated string
	if err := row.Scan(&c.ID, &c.POSDeviceID, &displayJSON, &c.CategoryType, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	c.DisplayName = r.unmarshalDisplayNames(displayJSON, "category", string(c.ID))
	c.CreatedAt, _ = time.Parse(time.RFC3339, created)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &c, nil
}

func (r *CatalogRepo) scanCategoryRows(rows *sql.Rows) (*catalog.Category, error) {
	var c catalog.Category
	var displayJSON, created, updated string
	if err := rows.Scan(&c.ID, &c.POSDeviceID, &displayJSON, &c.CategoryType, &created, &updated); err != nil {
		return nil, err
	}
	c.DisplayName = r.unmarshalDisplayNames(displayJSON, "category", string(c.ID))
	c.CreatedAt, _ = time.Parse(time.RFC3339, created)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &c, nil
}

// unmarshalDisplayNames parses a DisplayNames TEXT column, falling back to
// an empty mapping and a warning log on corrupt JSON (spec §7's contract)
// instead of silently discarding the malformed value.
func (r *CatalogRepo) unmarshalDisplayNames(raw, entity, id string) catalog.DisplayNames {
	var names catalog.DisplayNames
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		r.log.Warn().Err(err).Str("entity", entity).Str("id", id).Msg("sqlite: corrupt display_name JSON, falling back to empty mapping")
		return catalog.DisplayNames{}
	}
	return names
}

func (r *CatalogRepo) CreateItem(ctx context.Context, tx *dbtx.Handle, it catalog.Item) (catalog.Item, error) {
	displayJSON, err := json.Marshal(it.DisplayName)
	if err != nil {
		return catalog.Item{}, err
	}
	res, err := r.q(tx).ExecContext(ctx,
		`INSERT INTO items (pos_device_id, category_id, display_name, price, description, embedding_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		it.POSDeviceID, it.CategoryID, string(displayJSON), it.PriceCents, it.Description, "",
		it.CreatedAt.UTC().Format(time.RFC3339), it.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return catalog.Item{}, err
	}
	id, _ := res.LastInsertId()
	it.ID = catalog.ItemID(formatID(id))

	name := it.DisplayName["en"]
	if name == "" {
		for _, v := range it.DisplayName {
			name = v
			break
		}
	}
	if _, err := r.q(tx).ExecContext(ctx, `INSERT INTO items_fts (item_id, name) VALUES (?, ?)`, string(it.ID), name); err != nil {
		return catalog.Item{}, err
	}
	return it, nil
}

func (r *CatalogRepo) FindItem(ctx context.Context, tx *dbtx.Handle, id catalog.ItemID) (*catalog.Item, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT id, pos_device_id, category_id, display_name, price, description, created_at, updated_at FROM items WHERE id = ?`, id)
	return r.scanItem(row)
}

func (r *CatalogRepo) ListItemsByCategory(ctx context.Context, tx *dbtx.Handle, cat catalog.CategoryID) ([]catalog.Item, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id, pos_device_id, category_id, display_name, price, description, created_at, updated_at FROM items WHERE category_id = ? ORDER BY id`, cat)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []catalog.Item
	for rows.Next() {
		it, err := r.scanItemRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

func (r *CatalogRepo) ListAllItems(ctx context.Context, tx *dbtx.Handle) ([]catalog.Item, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id, pos_device_id, category_id, display_name, price, description, created_at, updated_at FROM items ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []catalog.Item
	for rows.Next() {
		it, err := r.scanItemRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

func (r *CatalogRepo) UpdateItemEmbeddingHash(ctx context.Context, tx *dbtx.Handle, id catalog.ItemID, semanticHash string) error {
	_, err := r.q(tx).ExecContext(ctx, `UPDATE items SET embedding_hash = ? WHERE id = ?`, semanticHash, id)
	return err
}

func (r *CatalogRepo) scanItem(row *sql.Row) (*catalog.Item, error) {
	var it catalog.Item
	var displayJSON, created, updated string
	if err := row.Scan(&it.ID, &it.POSDeviceID, &it.CategoryID, &displayJSON, &it.PriceCents, &it.Description, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	it.DisplayName = r.unmarshalDisplayNames(displayJSON, "item", string(it.ID))
	it.CreatedAt, _ = time.Parse(time.RFC3339, created)
	it.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &it, nil
}

func (r *CatalogRepo) scanItemRows(rows *sql.Rows) (*catalog.Item, error) {
	var it catalog.Item
	var displayJSON, created, updated string
	if err := rows.Scan(&it.ID, &it.POSDeviceID, &it.CategoryID, &displayJSON, &it.PriceCents, &it.Description, &created, &updated); err != nil {
		return nil, err
	}
	it.DisplayName = r.unmarshalDisplayNames(displayJSON, "item", string(it.ID))
	it.CreatedAt, _ = time.Parse(time.RFC3339, created)
	it.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &it, nil
}

func (r *CatalogRepo) CreateUser(ctx context.Context, tx *dbtx.Handle, u catalog.User) (catalog.User, error) {
	res, err := r.q(tx).ExecContext(ctx,
		`INSERT INTO users (username, password_hash, role_id, storno_daily_limit, storno_emergency_limit, storno_used_today, trust_score, is_active, force_password_change, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Username, u.PasswordHash, u.RoleID, u.StornoDailyLimit, u.StornoEmergencyLimit, u.StornoUsedToday, u.TrustScore,
		boolToInt(u.IsActive), boolToInt(u.ForcePasswordChange), u.CreatedAt.UTC().Format(time.RFC3339), u.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return catalog.User{}, err
	}
	id, _ := res.LastInsertId()
	u.ID = catalog.UserID(formatID(id))
	return u, nil
}

func (r *CatalogRepo) FindUser(ctx context.Context, tx *dbtx.Handle, id catalog.UserID) (*catalog.User, error) {
	row := r.q(tx).QueryRowContext(ctx, userSelectCols+`FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *CatalogRepo) FindUserByUsername(ctx context.Context, tx *dbtx.Handle, username string) (*catalog.User, error) {
	row := r.q(tx).QueryRowContext(ctx, userSelectCols+`FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func (r *CatalogRepo) UpdateUser(ctx context.Context, tx *dbtx.Handle, u catalog.User) error {
	_, err := r.q(tx).ExecContext(ctx,
		`UPDATE users SET username=?, password_hash=?, role_id=?, storno_daily_limit=?, storno_emergency_limit=?, storno_used_today=?,
		 trust_score=?, is_active=?, force_password_change=?, updated_at=? WHERE id=?`,
		u.Username, u.PasswordHash, u.RoleID, u.StornoDailyLimit, u.StornoEmergencyLimit, u.StornoUsedToday, u.TrustScore,
		boolToInt(u.IsActive), boolToInt(u.ForcePasswordChange), u.UpdatedAt.UTC().Format(time.RFC3339), u.ID)
	return err
}

func (r *CatalogRepo) ListUsersByRole(ctx context.Context, tx *dbtx.Handle, role catalog.RoleID) ([]catalog.User, error) {
	rows, err := r.q(tx).QueryContext(ctx, userSelectCols+`FROM users WHERE role_id = ? ORDER BY id`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []catalog.User
	for rows.Next() {
		u, err := scanUserRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (r *CatalogRepo) ListAllUsers(ctx context.Context, tx *dbtx.Handle) ([]catalog.User, error) {
	rows, err := r.q(tx).QueryContext(ctx, userSelectCols+`FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []catalog.User
	for rows.Next() {
		u, err := scanUserRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (r *CatalogRepo) ResetAllStornoUsedToday(ctx context.Context, tx *dbtx.Handle) error {
	_, err := r.q(tx).ExecContext(ctx, `UPDATE users SET storno_used_today = '0'`)
	return err
}

const userSelectCols = `SELECT id, username, password_hash, role_id, storno_daily_limit, storno_emergency_limit, storno_used_today,
	trust_score, is_active, force_password_change, created_at, updated_at `

func scanUser(row *sql.Row) (*catalog.User, error) {
	var u catalog.User
	var active, force int
	var created, updated string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.RoleID, &u.StornoDailyLimit, &u.StornoEmergencyLimit, &u.StornoUsedToday,
		&u.TrustScore, &active, &force, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	u.IsActive = active != 0
	u.ForcePasswordChange = force != 0
	u.CreatedAt, _ = time.Parse(time.RFC3339, created)
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &u, nil
}

func scanUserRows(rows *sql.Rows) (*catalog.User, error) {
	var u catalog.User
	var active, force int
	var created, updated string
	if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.RoleID, &u.StornoDailyLimit, &u.StornoEmergencyLimit, &u.StornoUsedToday,
		&u.TrustScore, &active, &force, &created, &updated); err != nil {
		return nil, err
	}
	u.IsActive = active != 0
	u.ForcePasswordChange = force != 0
	u.CreatedAt, _ = time.Parse(time.RFC3339, created)
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &u, nil
}

func (r *CatalogRepo) CreateRole(ctx context.Context, tx *dbtx.Handle, role catalog.Role) (catalog.Role, error) {
	permJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return catalog.Role{}, err
	}
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO roles (name, permissions, can_approve_changes, can_manage_users) VALUES (?, ?, ?, ?)`,
		role.Name, string(permJSON), boolToInt(role.CanApproveChanges), boolToInt(role.CanManageUsers))
	if err != nil {
		return catalog.Role{}, err
	}
	id, _ := res.LastInsertId()
	role.ID = catalog.RoleID(formatID(id))
	return role, nil
}

func (r *CatalogRepo) FindRole(ctx context.Context, tx *dbtx.Handle, id catalog.RoleID) (*catalog.Role, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT id, name, permissions, can_approve_changes, can_manage_users FROM roles WHERE id = ?`, id)
	return r.scanRole(row)
}

func (r *CatalogRepo) ListAdminRoles(ctx context.Context, tx *dbtx.Handle) ([]catalog.Role, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id, name, permissions, can_approve_changes, can_manage_users FROM roles WHERE can_manage_users = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []catalog.Role
	for rows.Next() {
		var role catalog.Role
		var permJSON string
		var approve, manage int
		if err := rows.Scan(&role.ID, &role.Name, &permJSON, &approve, &manage); err != nil {
			return nil, err
		}
		role.Permissions = r.unmarshalPermissions(permJSON, string(role.ID))
		role.CanApproveChanges = approve != 0
		role.CanManageUsers = manage != 0
		out = append(out, role)
	}
	return out, rows.Err()
}

func (r *CatalogRepo) scanRole(row *sql.Row) (*catalog.Role, error) {
	var role catalog.Role
	var permJSON string
	var approve, manage int
	if err := row.Scan(&role.ID, &role.Name, &permJSON, &approve, &manage); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	role.Permissions = r.unmarshalPermissions(permJSON, string(role.ID))
	role.CanApproveChanges = approve != 0
	role.CanManageUsers = manage != 0
	return &role, nil
}

// unmarshalPermissions parses a Role.Permissions TEXT column, falling back
// to an empty set and a warning log on corrupt JSON (spec §7's contract).
func (r *CatalogRepo) unmarshalPermissions(raw, roleID string) map[string]bool {
	var perms map[string]bool
	if err := json.Unmarshal([]byte(raw), &perms); err != nil {
		r.log.Warn().Err(err).Str("entity", "role").Str("id", roleID).Msg("sqlite: corrupt permissions JSON, falling back to empty set")
		return map[string]bool{}
	}
	return perms
}

// DeleteCatalogTree removes vec-items/items/categories/pos-devices/
// branches/companies in referential order and resets identity sequences,
// for importer's atomic replace (spec §4.8 step 1).
func (r *CatalogRepo) DeleteCatalogTree(ctx context.Context, tx *dbtx.Handle) error {
	q := r.q(tx)
	stmts := []string{
		`DELETE FROM item_embeddings`,
		`DELETE FROM items_fts`,
		`DELETE FROM items`,
		`DELETE FROM categories`,
		`DELETE FROM pos_devices`,
		`DELETE FROM branches`,
		`DELETE FROM companies`,
		`DELETE FROM sqlite_sequence WHERE name IN ('items','categories','pos_devices','branches','companies')`,
	}
	for _, stmt := range stmts {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *CatalogRepo) CreateCompany(ctx context.Context, tx *dbtx.Handle, c catalog.Company) (catalog.Company, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO companies (name, created_at, updated_at) VALUES (?, ?, ?)`,
		c.Name, c.CreatedAt.UTC().Format(time.RFC3339), c.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return catalog.Company{}, err
	}
	id, _ := res.LastInsertId()
	c.ID = catalog.CompanyID(formatID(id))
	return c, nil
}

func (r *CatalogRepo) CreateBranch(ctx context.Context, tx *dbtx.Handle, b catalog.Branch) (catalog.Branch, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO branches (company_id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		b.CompanyID, b.Name, b.CreatedAt.UTC().Format(time.RFC3339), b.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return catalog.Branch{}, err
	}
	id, _ := res.LastInsertId()
	b.ID = catalog.BranchID(formatID(id))
	return b, nil
}

func (r *CatalogRepo) CreatePOSDevice(ctx context.Context, tx *dbtx.Handle, d catalog.POSDevice) (catalog.POSDevice, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO pos_devices (branch_id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		d.BranchID, d.Name, d.CreatedAt.UTC().Format(time.RFC3339), d.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return catalog.POSDevice{}, err
	}
	id, _ := res.LastInsertId()
	d.ID = catalog.POSDeviceID(formatID(id))
	return d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
