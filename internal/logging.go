package internal

import (
	"context"
	"encoding/binary"
	"log/slog"
)

// LevelTrace logs below Debug for per-packet noise.
const LevelTrace slog.Level = slog.LevelDebug - 2

// LogEnabled reports whether l would emit a record at lvl. A nil logger
// emits nothing.
func LogEnabled(l *slog.Logger, lvl slog.Level) bool {
	return l != nil && l.Handler().Enabled(context.Background(), lvl)
}

// LogAttrs is the single choke point all package loggers go through so that
// a nil logger costs nothing on the hot receive path.
func LogAttrs(l *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if l != nil {
		l.LogAttrs(context.Background(), level, msg, attrs...)
	}
}

// SlogAddr4 returns a slog.Attr for a 4-byte IPv4 address
// packed into a uint64 without allocating a string.
func SlogAddr4(key string, addr *[4]byte) slog.Attr {
	return slog.Uint64(key, uint64(binary.BigEndian.Uint32(addr[:])))
}

// SlogAddr6 returns a slog.Attr for a 6-byte hardware (MAC) address
// packed into a uint64 without allocating a string.
func SlogAddr6(key string, addr *[6]byte) slog.Attr {
	var buf [8]byte
	copy(buf[2:], addr[:])
	return slog.Uint64(key, binary.BigEndian.Uint64(buf[:]))
}
