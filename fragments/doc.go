// package fragments provides the low-level Writer and Reader cursors
// used to lay out and parse the desktop-service-bus wire format.
//
// The provided writers and readers are low level tools and do not by
// themselves ensure that a whole message is well-formed; they only
// guarantee correct alignment, framing and bounds checking for the
// individual primitives and containers built on top of them.
//
// You should not need to use this package directly unless you are
// implementing your own [github.com/mtsonder/dbuswire.Marshaler] or
// [github.com/mtsonder/dbuswire.Unmarshaler], in which case your code
// will be handed a [Writer] or [*Reader] and is expected to produce
// or consume correct wire data with it.
package fragments
