/*
router.go - the command set and rename table of spec §6/§8: a map from
command name to handler, plus an optional response-command rename (most
replies are `<command>Response`; a few commands rename to group client-side
handlers, e.g. `finishTransaction` -> `transactionFinished`).
*/
package dispatcher

import (
	"context"
	"encoding/json"
)

// Session carries the authenticated identity and connection handle a
// handler needs; the dispatcher constructs one per connection.
type Session struct {
	ClientID string
	UserID   string
}

// Handler processes one command's payload and returns the reply payload.
type Handler func(ctx context.Context, sess *Session, payload json.RawMessage) (any, error)

// route pairs a handler with its optional response rename.
type route struct {
	handler      Handler
	responseName string // empty means "<command>Response"
}

// Router maps command name -> handler, and command name -> renamed
// response command where the spec's rename table applies.
type Router struct {
	routes map[string]route
}

func NewRouter() *Router {
	return &Router{routes: make(map[string]route)}
}

// Handle registers a command with the default "<command>Response" reply
// name.
func (r *Router) Handle(command string, h Handler) {
	r.routes[command] = route{handler: h}
}

// HandleRenamed registers a command whose reply carries a different
// command name, per spec §4.6/§6's rename table (e.g. "orderUpdated",
// "transactionFinished", "reprintResult", "checkTableAvailabilityResponse").
func (r *Router) HandleRenamed(command string, responseName string, h Handler) {
	r.routes[command] = route{handler: h, responseName: responseName}
}

// Dispatch looks up command and, if found, returns its handler and the
// command name its response should carry.
func (r *Router) Dispatch(command string) (Handler, string, bool) {
	rt, ok := r.routes[command]
	if !ok {
		return nil, "", false
	}
	name := rt.responseName
	if name == "" {
		name = command + "Response"
	}
	return rt.handler, name, true
}
