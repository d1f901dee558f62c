// Package template turns host-evaluated template expressions into live,
// deduplicated, change-detected signals.
//
// An Engine owns at most one push channel per subscription key. Each push
// from the host is interpreted with package result, cached, and compared
// against the previous value for the key; the key's change callback fires
// only when the interpreted value actually changed.
//
// # Idempotent Subscribe
//
// Subscribe is safe to call on every render. A second call for a key that is
// already subscribed (or whose channel is still being opened) returns
// immediately without contacting the host. A failed open leaves the key
// unsubscribed so a later call retries.
//
// # Result Families
//
// Boolean-semantic keys fire on a change of the parsed condition.
// String-semantic keys (see result.StringPrefixes) fire on a change of the
// raw rendered text; their boolean is always true.
//
// # Cache
//
// Every push refreshes the key's Entry. Reads within the cache TTL are
// reported fresh. Older reads return the last known value, since values only
// ever change through pushes.
//
// # Teardown
//
// There is no per-key unsubscribe. TeardownAll closes every channel, records
// a per-key outcome, and always clears all engine state even when closes
// fail or panic.
package template
