package host

import (
	"strconv"
	"strings"

	"padcast/internal/plugin"
)

// Resolver expands %x tokens: lowercase letters read the now item,
// uppercase the next item. %% is a literal percent sign. Unknown tokens are
// copied through unchanged, which leaves room for placeholders the
// receiving end understands.
type Resolver struct{}

func NewResolver() Resolver { return Resolver{} }

func (Resolver) ResolveNowNext(now, next *plugin.Pad, format string) string {
	if strings.IndexByte(format, '%') < 0 {
		return format
	}
	var b strings.Builder
	b.Grow(len(format) + 32)
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 >= len(format) {
			b.WriteByte(c)
			continue
		}
		t := format[i+1]
		if t == '%' {
			b.WriteByte('%')
			i++
			continue
		}
		item := now
		lower := t
		if t >= 'A' && t <= 'Z' {
			item = next
			lower = t + ('a' - 'A')
		}
		v, ok := padField(item, lower)
		if !ok {
			b.WriteByte(c)
			continue
		}
		b.WriteString(v)
		i++
	}
	return b.String()
}

func padField(p *plugin.Pad, token byte) (string, bool) {
	switch token {
	case 'a', 'b', 'c', 'e', 'g', 'h', 'i', 'j', 'l', 'm', 'n', 'o', 'p', 'r', 's', 't', 'u', 'y':
	default:
		return "", false
	}
	if p == nil {
		return "", true
	}
	switch token {
	case 'a':
		return p.Artist, true
	case 'b':
		return p.Label, true
	case 'c':
		return p.Client, true
	case 'e':
		return p.Agency, true
	case 'g':
		return p.Group, true
	case 'h':
		return strconv.Itoa(p.Length), true
	case 'i':
		return p.Description, true
	case 'j':
		return numberOrEmpty(p.CutNumber), true
	case 'l':
		return p.Album, true
	case 'm':
		return p.Composer, true
	case 'n':
		return strconv.FormatUint(uint64(p.CartNumber), 10), true
	case 'o':
		return p.Outcue, true
	case 'p':
		return p.Publisher, true
	case 'r':
		return p.Conductor, true
	case 's':
		return p.SongID, true
	case 't':
		return p.Title, true
	case 'u':
		return p.UserDefined, true
	default: // 'y'
		return numberOrEmpty(p.Year), true
	}
}

func numberOrEmpty(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
