/*
bootstrap.go - steps 1-5 of the six-step startup sequence of spec §4.5;
step 6 (accepting connections) happens in cmd/server/main.go.
*/
package recovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rs/zerolog"

	"github.com/fiskpoint/posengine/catalog"
	"github.com/fiskpoint/posengine/ferrors"
	"github.com/fiskpoint/posengine/fiscal"
	"github.com/fiskpoint/posengine/txn"
)

// DefaultAdminUsername/Password are the well-known initial credentials
// spec §4.5 step 2 mandates; force_password_change steers the operator to
// replace them before the first real shift.
const (
	DefaultAdminUsername = "admin"
	DefaultAdminPassword = "ChangeMe!2026"
)

type Bootstrap struct {
	Schema  SchemaValidator
	Catalog catalog.Repository
	Txn     txn.Repository
	Fiscal  *fiscal.Service
	Printer PrinterConfigLoader
	Log     zerolog.Logger
}

// Run executes steps 1-5 of spec §4.5 in order. Schema validation and
// admin-bootstrap failures are returned as errors; the later steps are
// best-effort and logged.
func (b *Bootstrap) Run(ctx context.Context) (*Result, error) {
	var result Result

	if b.Schema != nil {
		if err := b.Schema.ValidateSchema(ctx); err != nil {
			return nil, ferrors.New(ferrors.InvalidState, "schema validation failed: %v", err)
		}
	}

	if err := b.ensureAdmin(ctx, &result); err != nil {
		return nil, err
	}

	committed, needsReview, err := b.Fiscal.RecoverPendingOperations(ctx)
	if err != nil {
		b.Log.Warn().Err(err).Msg("recovery: recoverPendingFiscalOperations failed")
	}
	result.FiscalCommitted = committed
	result.FiscalNeedsReview = needsReview

	staleMarked, err := b.Txn.MarkStaleActiveAsPending(ctx, nil)
	if err != nil {
		b.Log.Warn().Err(err).Msg("recovery: runRecoveryProcess failed")
	}
	result.StaleMarkedPending = staleMarked

	if b.Printer != nil {
		if _, err := b.Printer.Load(ctx); err != nil {
			result.PrinterConfigWarning = err.Error()
			b.Log.Warn().Err(err).Msg("recovery: printer configuration unavailable, continuing without it")
		} else {
			result.PrinterConfigLoaded = true
		}
	}

	return &result, nil
}

// ensureAdmin implements spec §4.5 step 2.
func (b *Bootstrap) ensureAdmin(ctx context.Context, result *Result) error {
	roles, err := b.Catalog.ListAdminRoles(ctx, nil)
	if err != nil {
		return err
	}

	var adminRole catalog.Role
	if len(roles) == 0 {
		adminRole, err = b.Catalog.CreateRole(ctx, nil, catalog.Role{
			Name:              "administrator",
			Permissions:       map[string]bool{"*": true},
			CanApproveChanges: true,
			CanManageUsers:    true,
		})
		if err != nil {
			return err
		}
	} else {
		adminRole = roles[0]
	}

	users, err := b.Catalog.ListUsersByRole(ctx, nil, adminRole.ID)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}

	now := time.Now().UTC()
	_, err = b.Catalog.CreateUser(ctx, nil, catalog.User{
		Username:             DefaultAdminUsername,
		PasswordHash:         HashPassword(DefaultAdminPassword),
		RoleID:               adminRole.ID,
		StornoDailyLimit:     "0",
		StornoEmergencyLimit: "0",
		StornoUsedToday:      "0",
		TrustScore:           50,
		IsActive:             true,
		ForcePasswordChange:  true,
		AuditRecord:          catalog.AuditRecord{CreatedAt: now, UpdatedAt: now},
	})
	if err != nil {
		return err
	}
	result.AdminCreated = true
	result.AdminUsername = DefaultAdminUsername
	return nil
}

// HashPassword is a stdlib-only hash, deliberately not bcrypt/argon2: no
// repo in the retrieval pack wires a password-hashing library, and adding
// one here would be scope this system's spec never asks for (operators are
// forced to change the default credential on first login). Salted with a
// fixed domain separator so the stored hash isn't a bare SHA-256 lookup
// table hit for the well-known default password. Exported so the
// dispatcher's login handler can verify against it without duplicating the
// scheme.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte("posengine/admin-bootstrap:" + password))
	return hex.EncodeToString(sum[:])
}
