/*
auth.go - login/logout/getCurrentUser/getLoginUsers/checkPermission/
canPerformAction (spec §4.6 command set).

Authentication session storage is an explicit non-goal (spec §1): the
dispatcher only needs to associate an already-upgraded websocket
connection with a catalog.User for the lifetime of that connection. That
association lives on the per-connection Session value already threaded
through every Handler call; there is no separate session table, token
issuer, or expiry policy here - logging in again with the same
clientId simply overwrites it.
*/
package dispatcher

import (
	"context"
	"encoding/json"

	"github.com/fiskpoint/posengine/catalog"
	"github.com/fiskpoint/posengine/ferrors"
	"github.com/fiskpoint/posengine/recovery"
)

// AuthService resolves the catalog.User/Role pair behind a Session, and
// checks credentials at login. It is the narrow interface the command
// handlers need; NewAuthService takes a catalog.Repository as its sole
// collaborator.
type AuthService struct {
	Catalog catalog.Repository
}

func NewAuthService(cat catalog.Repository) *AuthService {
	return &AuthService{Catalog: cat}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userView struct {
	ID                  string `json:"id"`
	Username            string `json:"username"`
	RoleID              string `json:"roleId"`
	ForcePasswordChange bool   `json:"forcePasswordChange"`
}

func toUserView(u catalog.User) userView {
	return userView{ID: string(u.ID), Username: u.Username, RoleID: string(u.RoleID), ForcePasswordChange: u.ForcePasswordChange}
}

// registerAuthRoutes wires login/logout/getCurrentUser/getLoginUsers/
// checkPermission/canPerformAction onto r.
func registerAuthRoutes(r *Router, auth *AuthService) {
	r.Handle("login", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		var req loginRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "malformed login payload: %v", err)
		}
		u, err := auth.Catalog.FindUserByUsername(ctx, nil, req.Username)
		if err != nil {
			return nil, err
		}
		if u == nil || !u.IsActive || u.PasswordHash != recovery.HashPassword(req.Password) {
			return nil, ferrors.New(ferrors.PermissionDenied, "invalid credentials")
		}
		sess.UserID = string(u.ID)
		return toUserView(*u), nil
	})

	r.Handle("logout", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		sess.UserID = ""
		return map[string]bool{"ok": true}, nil
	})

	r.Handle("getCurrentUser", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		if sess.UserID == "" {
			return nil, ferrors.New(ferrors.PermissionDenied, "no active session")
		}
		u, err := auth.Catalog.FindUser(ctx, nil, catalog.UserID(sess.UserID))
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, ferrors.New(ferrors.NotFound, "user %s not found", sess.UserID)
		}
		return toUserView(*u), nil
	})

	r.Handle("getLoginUsers", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		users, err := auth.Catalog.ListAllUsers(ctx, nil)
		if err != nil {
			return nil, err
		}
		views := make([]userView, 0, len(users))
		for _, u := range users {
			if !u.IsActive {
				continue
			}
			views = append(views, toUserView(u))
		}
		return views, nil
	})

	r.Handle("checkPermission", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		var req struct {
			Permission string `json:"permission"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "malformed checkPermission payload: %v", err)
		}
		ok, err := hasPermission(ctx, auth.Catalog, sess.UserID, req.Permission)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"allowed": ok}, nil
	})

	r.Handle("canPerformAction", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		var req struct {
			Action string `json:"action"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "malformed canPerformAction payload: %v", err)
		}
		ok, err := hasPermission(ctx, auth.Catalog, sess.UserID, req.Action)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"allowed": ok}, nil
	})
}

func hasPermission(ctx context.Context, cat catalog.Repository, userID string, token string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	u, err := cat.FindUser(ctx, nil, catalog.UserID(userID))
	if err != nil || u == nil {
		return false, err
	}
	role, err := cat.FindRole(ctx, nil, u.RoleID)
	if err != nil || role == nil {
		return false, err
	}
	return role.HasPermission(token) || role.HasPermission("*"), nil
}
