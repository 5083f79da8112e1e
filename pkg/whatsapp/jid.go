package whatsapp

import "strings"

const (
	DefaultUserServer = "s.whatsapp.net"
	BroadcastServer   = "broadcast"
)

// IsBroadcast reports whether jid addresses a broadcast list or status feed.
func IsBroadcast(jid string) bool {
	return strings.HasSuffix(strings.TrimSpace(jid), "@"+BroadcastServer)
}

// UserPart strips the server and device suffix: "5511999:12@s.whatsapp.net"
// becomes "5511999".
func UserPart(jid string) string {
	user := strings.TrimSpace(jid)
	if i := strings.IndexByte(user, '@'); i >= 0 {
		user = user[:i]
	}
	if i := strings.IndexByte(user, ':'); i >= 0 {
		user = user[:i]
	}
	return user
}

// NormalizeTarget turns a bare phone number into a user JID and leaves full
// JIDs untouched.
func NormalizeTarget(target string) string {
	target = strings.TrimSpace(target)
	if target == "" || strings.Contains(target, "@") {
		return target
	}
	digits := strings.TrimPrefix(target, "+")
	return digits + "@" + DefaultUserServer
}

// SanitizePhone keeps only the digits of an operator-entered phone number.
func SanitizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
