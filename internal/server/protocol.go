// Package server defines the line protocol shared by the TCP listener and
// the WebSocket bridge: newline-delimited UTF-8 lines with "::" separated
// fields.
package server

import "strings"

const fieldSep = "::"

// Reserved names on the wire. BroadcastTarget fans a message out to every
// active connection; AssistantName addresses the reply agent; ServerName
// tags system notices. None of them can be claimed as a nickname.
const (
	BroadcastTarget = "*"
	AssistantName   = "AI"
	ServerName      = "Server"
)

const (
	verbNick     = "NICK"
	verbMsg      = "MSG"
	verbUserList = "USERLIST"
)

// request is one parsed MSG line from a client: where it should go and the
// still-encoded payload. It lives only until the router has dispatched it.
type request struct {
	target  string
	payload string
}

// parseNickLine extracts the nickname claim from a handshake line. The
// nickname is trimmed and must be non-empty, free of the "::" and ","
// framing characters, and not one of the reserved names.
func parseNickLine(line string) (string, bool) {
	rest, ok := strings.CutPrefix(line, verbNick+fieldSep)
	if !ok {
		return "", false
	}
	nick := strings.TrimSpace(rest)
	if !validNickname(nick) {
		return "", false
	}
	return nick, true
}

func validNickname(nick string) bool {
	if nick == "" || strings.ContainsAny(nick, ":,") {
		return false
	}
	if nick == BroadcastTarget || strings.EqualFold(nick, AssistantName) || strings.EqualFold(nick, ServerName) {
		return false
	}
	return true
}

// parseMsgLine splits "MSG::<target>::<payload>" into a request. Anything
// else, including a MSG line with too few fields, is rejected.
func parseMsgLine(line string) (request, bool) {
	parts := strings.SplitN(line, fieldSep, 3)
	if len(parts) != 3 || parts[0] != verbMsg || parts[1] == "" {
		return request{}, false
	}
	return request{target: parts[1], payload: parts[2]}, true
}

// msgLine formats a server-to-client message line. from is a nickname,
// AssistantName, or ServerName.
func msgLine(from, payload string) string {
	return verbMsg + fieldSep + from + fieldSep + payload
}

// userListLine formats the full-replacement online list. An empty set yields
// "USERLIST::" so clients can clear their view.
func userListLine(nicks []string) string {
	return verbUserList + fieldSep + strings.Join(nicks, ",")
}
