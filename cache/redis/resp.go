package redis

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// errorReply is a RESP "-ERR ..." reply from the server.
type errorReply string

func (e errorReply) Error() string { return "redis: " + string(e) }

func appendCommand(buf []byte, parts ...string) []byte {
	buf = append(buf, '*')
	buf = strconv.AppendInt(buf, int64(len(parts)), 10)
	buf = append(buf, '\r', '\n')
	for _, part := range parts {
		buf = append(buf, '$')
		buf = strconv.AppendInt(buf, int64(len(part)), 10)
		buf = append(buf, '\r', '\n')
		buf = append(buf, part...)
		buf = append(buf, '\r', '\n')
	}
	return buf
}

// readReply decodes one RESP value: string for simple strings, int64 for
// integers, []byte for bulk strings, []any for arrays and nil for null.
func readReply(r *bufio.Reader) (any, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	if len(line) < 3 || !strings.HasSuffix(line, "\r\n") {
		return nil, errors.New("redis: malformed reply line")
	}
	kind, body := line[0], line[1:len(line)-2]

	switch kind {
	case '+':
		return body, nil
	case '-':
		return nil, errorReply(body)
	case ':':
		return strconv.ParseInt(body, 10, 64)
	case '$':
		n, err := strconv.Atoi(body)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, nil
		}
		data := make([]byte, n+2)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, err
		}
		if data[n] != '\r' || data[n+1] != '\n' {
			return nil, errors.New("redis: malformed bulk terminator")
		}
		return data[:n], nil
	case '*':
		n, err := strconv.Atoi(body)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, nil
		}
		items := make([]any, n)
		for i := range items {
			if items[i], err = readReply(r); err != nil {
				return nil, err
			}
		}
		return items, nil
	default:
		return nil, fmt.Errorf("redis: unsupported reply type %q", kind)
	}
}
