package connection

import (
	"strconv"
	"strings"

	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/rmf"
)

// BuildGreeting renders the client greeting text: the protocol version line,
// the numheader format header and the terminating blank line.
func BuildGreeting() []byte {
	var sb strings.Builder
	sb.WriteString(rmf.Greeting11Start)
	sb.WriteString(rmf.NumheaderFormatHdr)
	sb.WriteString(":")
	sb.WriteString(strconv.Itoa(rmf.NumheaderFormat32))
	sb.WriteString("\n\n")
	return []byte(sb.String())
}

// ParseGreeting validates a received greeting. Both protocol 1.0 and 1.1
// are accepted; a numheader format other than 32 is rejected.
func ParseGreeting(data []byte) error {
	if len(data) > rmf.GreetingMaxLen {
		return apx.NewError(apx.ErrInvalidHeader)
	}
	text := string(data)
	var rest string
	switch {
	case strings.HasPrefix(text, rmf.Greeting10Start):
		rest = text[len(rmf.Greeting10Start):]
	case strings.HasPrefix(text, rmf.Greeting11Start):
		rest = text[len(rmf.Greeting11Start):]
	default:
		return apx.NewError(apx.ErrInvalidHeader)
	}
	for _, line := range strings.Split(rest, "\n") {
		if line == "" {
			continue
		}
		i := strings.IndexByte(line, ':')
		if i < 0 {
			return apx.NewError(apx.ErrInvalidHeader)
		}
		key := strings.TrimSpace(line[:i])
		value := strings.TrimSpace(line[i+1:])
		if strings.EqualFold(key, rmf.NumheaderFormatHdr) {
			format, err := strconv.Atoi(value)
			if err != nil {
				return apx.NewError(apx.ErrInvalidHeader)
			}
			if format != rmf.NumheaderFormat32 {
				// 16-bit numheaders are declared but never used; reject them
				return apx.NewError(apx.ErrUnsupported)
			}
		}
	}
	return nil
}

// IsGreeting reports whether a message looks like a greeting rather than a
// framed RMF message.
func IsGreeting(data []byte) bool {
	return len(data) >= 5 && string(data[:5]) == "RMFP/"
}
