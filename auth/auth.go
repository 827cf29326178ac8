// Package auth implements the line-based SASL-style handshake a
// client speaks before sending its first message: an AUTH EXTERNAL
// exchange identifying the connecting process by UID, followed by a
// NEGOTIATE_UNIX_FD/BEGIN exchange that switches the connection into
// binary message mode.
//
// This package implements the line protocol only; it does not open
// a transport, and it does not attempt to actually prove the claimed
// UID — on a unix socket the bus authenticates the peer via socket
// credentials it reads itself, so (as in practice every real client
// does) the handshake here sends fixed lines and only checks each
// response for the expected happy-path shape: the AUTH EXTERNAL line
// first, then, after an OK reply, NEGOTIATE_UNIX_FD and BEGIN
// together in a second write.
package auth

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrAuthenticationFailed means the bus rejected the AUTH EXTERNAL
// exchange: it did not accept the claimed UID.
var ErrAuthenticationFailed = errors.New("auth: authentication failed")

// ErrNegotiationFailed means AUTH EXTERNAL succeeded but the bus
// rejected the NEGOTIATE_UNIX_FD/BEGIN exchange that switches the
// connection into binary message mode.
var ErrNegotiationFailed = errors.New("auth: negotiation failed")

// Handshake speaks the AUTH EXTERNAL / NEGOTIATE_UNIX_FD handshake
// over rw, authenticating as uid. On success, rw is positioned to
// read and write binary DBus messages.
//
// Handshake buffers its reads internally; any bytes it reads past the
// final "AGREE_UNIX_FD\r\n" line are discarded, since the handshake
// lines are always sent alone. Callers that pipeline the first
// message immediately after BEGIN without waiting for the reply
// should not do so over the same connection without accounting for
// this.
func Handshake(rw io.ReadWriter, uid int) error {
	uidHex := hex.EncodeToString([]byte(strconv.Itoa(uid)))
	if _, err := io.WriteString(rw, "\x00AUTH EXTERNAL "+uidHex+"\r\n"); err != nil {
		return fmt.Errorf("auth: writing AUTH EXTERNAL: %w", err)
	}

	r := bufio.NewReader(rw)
	resp, err := r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("auth: reading AUTH EXTERNAL response: %w", err)
	}
	if !strings.HasPrefix(resp, "OK") {
		return fmt.Errorf("auth: AUTH EXTERNAL rejected, server said %q: %w", strings.TrimSpace(resp), ErrAuthenticationFailed)
	}

	if _, err := io.WriteString(rw, "NEGOTIATE_UNIX_FD\r\nBEGIN\r\n"); err != nil {
		return fmt.Errorf("auth: writing NEGOTIATE_UNIX_FD: %w", err)
	}
	resp, err = r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("auth: reading NEGOTIATE_UNIX_FD response: %w", err)
	}
	if !strings.HasPrefix(resp, "AGREE_UNIX_FD") {
		return fmt.Errorf("auth: NEGOTIATE_UNIX_FD rejected, server said %q: %w", strings.TrimSpace(resp), ErrNegotiationFailed)
	}
	return nil
}
