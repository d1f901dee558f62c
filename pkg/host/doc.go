// Package host connects the template engine to a home automation host over
// its websocket API.
//
// A Client performs the token handshake, then multiplexes render_template
// subscriptions over a single connection. Each subscription is addressed by
// the id of the command that created it:
//
//	-> {"id": 7, "type": "render_template", "template": "...", "variables": {...}}
//	<- {"id": 7, "type": "result", "success": true}
//	<- {"id": 7, "type": "event", "event": {"result": "on"}}
//	-> {"id": 9, "type": "unsubscribe_events", "subscription": 7}
//
// Open blocks until the host accepts or rejects the subscription. Events
// are delivered on the client's read goroutine, so pushes for one key
// arrive in the order the host sent them.
//
// Outbound commands pass through a token-bucket limiter so a burst of
// subscribes from many views does not flood the host.
package host
