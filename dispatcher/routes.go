/*
routes.go - registers the full command set of spec §4.6 onto a Router,
with the rename table the teacher's response-naming convention calls for:
most handlers reply under "<command>Response", but a handful of commands
that mutate shared/broadcastable state reply under a shared event name so
every connected client (not just the caller) can apply the same handler
for both the direct reply and the Hub.Broadcast it triggers.
*/
package dispatcher

import (
	"context"
	"encoding/json"

	"github.com/fiskpoint/posengine/catalog"
	"github.com/fiskpoint/posengine/ferrors"
	"github.com/fiskpoint/posengine/layout"
	"github.com/fiskpoint/posengine/money"
	"github.com/fiskpoint/posengine/search"
	"github.com/fiskpoint/posengine/storno"
	"github.com/fiskpoint/posengine/txn"
)

// Routes bundles every collaborator routes.go needs to wire the command
// set. Hub is optional: when set, mutating handlers broadcast their
// result to every connected client, the caller included, before the
// caller's own reply is sent.
type Routes struct {
	Catalog catalog.Repository
	Txn     *txn.Engine
	Storno  *storno.Engine
	Search  *search.Service
	Layout  *layout.Service
	Hub     *Hub
}

// NewRouterWithRoutes builds a Router and registers every command of
// spec §4.6 onto it, including the auth routes of auth.go.
func NewRouterWithRoutes(routes Routes) *Router {
	r := NewRouter()
	registerAuthRoutes(r, NewAuthService(routes.Catalog))
	registerCatalogRoutes(r, routes)
	registerLayoutRoutes(r, routes)
	registerTransactionRoutes(r, routes)
	registerStornoRoutes(r, routes)
	registerMiscRoutes(r, routes)
	return r
}

func registerCatalogRoutes(r *Router, deps Routes) {
	r.Handle("ping_ws", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		return map[string]string{"pong": serverTimeNow()}, nil
	})

	r.Handle("getCategories", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		var req struct {
			POSDeviceID string `json:"posDeviceId"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "malformed getCategories payload: %v", err)
		}
		return deps.Catalog.ListCategories(ctx, nil, catalog.POSDeviceID(req.POSDeviceID))
	})

	r.Handle("getItemsByCategory", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		var req struct {
			CategoryID string `json:"categoryId"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "malformed getItemsByCategory payload: %v", err)
		}
		return deps.Catalog.ListItemsByCategory(ctx, nil, catalog.CategoryID(req.CategoryID))
	})

	r.Handle("searchProducts", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		var req struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "malformed searchProducts payload: %v", err)
		}
		return deps.Search.SearchProducts(ctx, req.Query, search.Options{})
	})
}

func registerLayoutRoutes(r *Router, deps Routes) {
	r.Handle("listLayouts", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		return deps.Layout.ListLayouts(ctx)
	})

	r.Handle("saveLayout", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		var req struct {
			Name               string          `json:"name"`
			CategoriesSnapshot json.RawMessage `json:"categoriesSnapshot"`
			SourceType         string          `json:"sourceType"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "malformed saveLayout payload: %v", err)
		}
		return deps.Layout.SaveLayout(ctx, req.Name, []byte(req.CategoriesSnapshot), req.SourceType)
	})

	r.Handle("activateLayout", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		var req struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "malformed activateLayout payload: %v", err)
		}
		result, err := deps.Layout.ActivateLayout(ctx, layout.LayoutID(req.ID))
		if err != nil {
			return nil, err
		}
		deps.broadcast("layoutActivated", result)
		return result, nil
	})
}

func registerTransactionRoutes(r *Router, deps Routes) {
	r.HandleRenamed("findOrCreateActiveTransaction", "orderUpdated", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		var req struct {
			TransactionID *int64            `json:"transactionId"`
			Metadata      map[string]string `json:"metadata"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "malformed findOrCreateActiveTransaction payload: %v", err)
		}
		criteria := txn.FindOrCreateCriteria{Metadata: req.Metadata}
		if req.TransactionID != nil {
			id := txn.TransactionID(*req.TransactionID)
			criteria.TransactionID = &id
		}
		result, err := deps.Txn.FindOrCreateActiveTransaction(ctx, criteria, sess.UserID)
		if err != nil {
			return nil, err
		}
		deps.broadcast("orderUpdated", result)
		return result, nil
	})

	r.HandleRenamed("addItemToTransaction", "orderUpdated", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		var req struct {
			TransactionID int64  `json:"transactionId"`
			ItemID        string `json:"itemId"`
			Quantity      string `json:"quantity"`
			Notes         string `json:"notes"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "malformed addItemToTransaction payload: %v", err)
		}
		qty, err := money.NewFromString(req.Quantity)
		if err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "invalid quantity: %v", err)
		}
		result, err := deps.Txn.AddItemToTransaction(ctx, txn.TransactionID(req.TransactionID), req.ItemID, qty, sess.UserID, req.Notes)
		if err != nil {
			return nil, err
		}
		deps.broadcast("orderUpdated", result)
		return result, nil
	})

	r.Handle("addCustomPriceItem", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		var req struct {
			TransactionID int64  `json:"transactionId"`
			ItemID        string `json:"itemId"`
			Quantity      string `json:"quantity"`
			UnitPrice     string `json:"unitPrice"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "malformed addCustomPriceItem payload: %v", err)
		}
		qty, err := money.NewFromString(req.Quantity)
		if err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "invalid quantity: %v", err)
		}
		price, err := money.NewFromString(req.UnitPrice)
		if err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "invalid unitPrice: %v", err)
		}
		return deps.Txn.AddCustomPriceItemToTransaction(ctx, txn.TransactionID(req.TransactionID), req.ItemID, qty, price, sess.UserID)
	})

	r.Handle("updateItemQuantity", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		var req struct {
			TransactionID int64  `json:"transactionId"`
			LineID        int64  `json:"lineId"`
			Quantity      string `json:"quantity"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "malformed updateItemQuantity payload: %v", err)
		}
		qty, err := money.NewFromString(req.Quantity)
		if err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "invalid quantity: %v", err)
		}
		return deps.Txn.UpdateItemQuantityInTransaction(ctx, txn.TransactionID(req.TransactionID), txn.ItemLineID(req.LineID), qty, sess.UserID)
	})

	r.Handle("updateItemPrice", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		var req struct {
			TransactionID int64  `json:"transactionId"`
			LineID        int64  `json:"lineId"`
			NewPrice      string `json:"newPrice"`
			IsTotalPrice  bool   `json:"isTotalPrice"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "malformed updateItemPrice payload: %v", err)
		}
		price, err := money.NewFromString(req.NewPrice)
		if err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "invalid newPrice: %v", err)
		}
		return deps.Txn.UpdateItemPriceInTransaction(ctx, txn.TransactionID(req.TransactionID), txn.ItemLineID(req.LineID), price, sess.UserID, req.IsTotalPrice)
	})

	r.HandleRenamed("finishTransaction", "transactionFinished", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		var req struct {
			TransactionID int64  `json:"transactionId"`
			PaymentType   string `json:"paymentType"`
			Amount        string `json:"amount"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "malformed finishTransaction payload: %v", err)
		}
		amount, err := money.NewFromString(req.Amount)
		if err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "invalid amount: %v", err)
		}
		result, err := deps.Txn.FinishTransaction(ctx, txn.TransactionID(req.TransactionID), txn.PaymentData{Type: req.PaymentType, Amount: amount}, sess.UserID)
		if err != nil {
			return nil, err
		}
		deps.broadcast("transactionFinished", result)
		return result, nil
	})

	r.HandleRenamed("reprintReceipt", "reprintResult", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		return nil, ferrors.New(ferrors.NotImplemented, "reprintReceipt requires the printer collaborator, out of scope here")
	})

	r.Handle("parkTransaction", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		var req struct {
			TransactionID   int64  `json:"transactionId"`
			Table           string `json:"table"`
			UpdateTimestamp bool   `json:"updateTimestamp"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "malformed parkTransaction payload: %v", err)
		}
		result, err := deps.Txn.ParkTransaction(ctx, txn.TransactionID(req.TransactionID), req.Table, sess.UserID, req.UpdateTimestamp)
		if err != nil {
			return nil, err
		}
		deps.broadcast("orderUpdated", result)
		return result, nil
	})

	r.HandleRenamed("activateTransaction", "orderUpdated", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		var req struct {
			TransactionID   int64 `json:"transactionId"`
			UpdateTimestamp bool  `json:"updateTimestamp"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "malformed activateTransaction payload: %v", err)
		}
		result, err := deps.Txn.ActivateTransaction(ctx, txn.TransactionID(req.TransactionID), sess.UserID, req.UpdateTimestamp)
		if err != nil {
			return nil, err
		}
		deps.broadcast("orderUpdated", result)
		return result, nil
	})

	r.Handle("getParkedTransactions", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		return deps.Txn.Repo.GetParkedTransactions(ctx, nil)
	})

	r.Handle("updateTransactionMetadata", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		var req struct {
			TransactionID   int64             `json:"transactionId"`
			Patch           map[string]string `json:"patch"`
			UpdateTimestamp bool              `json:"updateTimestamp"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "malformed updateTransactionMetadata payload: %v", err)
		}
		return deps.Txn.UpdateTransactionMetadata(ctx, txn.TransactionID(req.TransactionID), req.Patch, sess.UserID, req.UpdateTimestamp)
	})

	r.Handle("checkTableAvailability", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		var req struct {
			Table         string `json:"table"`
			ExcludeTxID   *int64 `json:"excludeTransactionId"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "malformed checkTableAvailability payload: %v", err)
		}
		var exclude *txn.TransactionID
		if req.ExcludeTxID != nil {
			id := txn.TransactionID(*req.ExcludeTxID)
			exclude = &id
		}
		inUse, err := deps.Txn.CheckTableNumberInUse(ctx, req.Table, exclude)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"available": !inUse}, nil
	})

	r.Handle("resolvePendingTransaction", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		var req struct {
			TransactionID int64  `json:"transactionId"`
			Resolution    string `json:"resolution"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "malformed resolvePendingTransaction payload: %v", err)
		}
		return deps.Txn.ResolvePendingTransaction(ctx, txn.TransactionID(req.TransactionID), txn.Resolution(req.Resolution), sess.UserID)
	})

	r.Handle("getPendingTransactions", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		return deps.Txn.GetPendingTransactions(ctx)
	})

	r.Handle("getRecentReceipts", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		var req struct {
			Limit int `json:"limit"`
		}
		_ = json.Unmarshal(payload, &req)
		if req.Limit <= 0 {
			req.Limit = 50
		}
		return deps.Txn.Repo.ListRecentFinished(ctx, nil, req.Limit)
	})
}

func registerStornoRoutes(r *Router, deps Routes) {
	r.Handle("performStorno", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		var req struct {
			TransactionID int64  `json:"originalTxId"`
			Amount        string `json:"amount"`
			Reason        string `json:"reason"`
			IsEmergency   bool   `json:"isEmergency"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "malformed performStorno payload: %v", err)
		}
		amount, err := money.NewFromString(req.Amount)
		if err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "invalid amount: %v", err)
		}
		result, err := deps.Storno.PerformStorno(ctx, catalog.UserID(sess.UserID), txn.TransactionID(req.TransactionID), amount, req.Reason, req.IsEmergency)
		if err != nil {
			return nil, err
		}
		if result.Status == storno.StatusPending {
			deps.broadcast("stornoPending", result)
		}
		return result, nil
	})

	r.Handle("approveStorno", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		var req struct {
			StornoID int64  `json:"stornoId"`
			Notes    string `json:"notes"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "malformed approveStorno payload: %v", err)
		}
		result, err := deps.Storno.ApproveStorno(ctx, catalog.UserID(sess.UserID), storno.StornoID(req.StornoID), req.Notes)
		if err != nil {
			return nil, err
		}
		deps.broadcast("stornoResolved", result)
		return result, nil
	})

	r.Handle("rejectStorno", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		var req struct {
			StornoID int64  `json:"stornoId"`
			Notes    string `json:"notes"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "malformed rejectStorno payload: %v", err)
		}
		result, err := deps.Storno.RejectStorno(ctx, catalog.UserID(sess.UserID), storno.StornoID(req.StornoID), req.Notes)
		if err != nil {
			return nil, err
		}
		deps.broadcast("stornoResolved", result)
		return result, nil
	})

	r.Handle("getPendingStornos", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		return deps.Storno.ListPendingStornos(ctx)
	})

	r.Handle("getPendingChanges", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		return deps.Storno.ListPendingChanges(ctx)
	})

	r.Handle("approveChange", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		var req struct {
			ChangeID int64  `json:"changeId"`
			Notes    string `json:"notes"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "malformed approveChange payload: %v", err)
		}
		result, err := deps.Storno.ApproveChange(ctx, catalog.UserID(sess.UserID), storno.ChangeID(req.ChangeID), req.Notes)
		if err != nil {
			return nil, err
		}
		deps.broadcast("changeResolved", result)
		return result, nil
	})

	r.Handle("rejectChange", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		var req struct {
			ChangeID int64  `json:"changeId"`
			Notes    string `json:"notes"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "malformed rejectChange payload: %v", err)
		}
		result, err := deps.Storno.RejectChange(ctx, catalog.UserID(sess.UserID), storno.ChangeID(req.ChangeID), req.Notes)
		if err != nil {
			return nil, err
		}
		deps.broadcast("changeResolved", result)
		return result, nil
	})

	r.Handle("batchProcessChanges", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		var req struct {
			ChangeIDs []int64 `json:"changeIds"`
			Approve   bool    `json:"approve"`
			Notes     string  `json:"notes"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, ferrors.New(ferrors.ValidationError, "malformed batchProcessChanges payload: %v", err)
		}
		ids := make([]storno.ChangeID, len(req.ChangeIDs))
		for i, id := range req.ChangeIDs {
			ids[i] = storno.ChangeID(id)
		}
		outcomes := deps.Storno.BatchProcessChanges(ctx, catalog.UserID(sess.UserID), ids, req.Approve, req.Notes)
		deps.broadcast("changeResolved", outcomes)
		return outcomes, nil
	})

	r.Handle("getManagerDashboard", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		pendingStornos, err := deps.Storno.ListPendingStornos(ctx)
		if err != nil {
			return nil, err
		}
		pendingChanges, err := deps.Storno.ListPendingChanges(ctx)
		if err != nil {
			return nil, err
		}
		parked, err := deps.Txn.Repo.GetParkedTransactions(ctx, nil)
		if err != nil {
			return nil, err
		}
		pending, err := deps.Txn.GetPendingTransactions(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"pendingStornos":      pendingStornos,
			"pendingChanges":      pendingChanges,
			"parkedTransactions":  parked,
			"pendingTransactions": pending,
		}, nil
	})
}

func registerMiscRoutes(r *Router, deps Routes) {
	r.Handle("logClientEvent", func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error) {
		// Client telemetry is fire-and-forget: acknowledge receipt without
		// persisting, there is no event-log store in scope here.
		return map[string]bool{"ok": true}, nil
	})
}

// broadcast is a no-op when no Hub was wired (e.g. in tests that exercise
// a Router directly without a live websocket Hub).
func (d Routes) broadcast(command string, payload any) {
	if d.Hub != nil {
		d.Hub.Broadcast(command, payload)
	}
}
