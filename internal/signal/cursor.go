package signal

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cursor is a decoded pagination position. For latest/mixed sorts it holds
// (createdAt, id); for severity sort it additionally holds the severity of
// the last item. The comparison predicate it represents is "strictly after
// this position in the active descending sort order", with id as the final
// tie-break so pages never repeat or skip rows that share a timestamp.
type Cursor struct {
	Severity    int
	HasSeverity bool
	CreatedAt   time.Time
	ID          string
}

// EncodeCursor produces the opaque continuation token for the last item of
// a page under the given sort mode. The token's internal layout is not part
// of the API contract.
func EncodeCursor(mode SortMode, s *Signal) string {
	ms := s.CreatedAt.UnixMilli()
	var raw string
	if mode == SortSeverity {
		raw = fmt.Sprintf("%d,%d,%s", s.Severity, ms, s.ID)
	} else {
		raw = fmt.Sprintf("%d,%s", ms, s.ID)
	}
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a continuation token for the given sort mode. A token
// that does not match the expected tuple shape for the mode fails with
// ErrMalformedCursor; callers must surface this as a client error rather
// than retrying.
func DecodeCursor(mode SortMode, token string) (*Cursor, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: not base64url", ErrMalformedCursor)
	}

	parts := strings.Split(string(decoded), ",")
	if mode == SortSeverity {
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: expected severity,timestamp,id", ErrMalformedCursor)
		}
		sev, err := strconv.Atoi(parts[0])
		if err != nil || sev < MinSeverity || sev > MaxSeverity {
			return nil, fmt.Errorf("%w: bad severity component", ErrMalformedCursor)
		}
		ms, id, err := parseTimeID(parts[1], parts[2])
		if err != nil {
			return nil, err
		}
		return &Cursor{Severity: sev, HasSeverity: true, CreatedAt: ms, ID: id}, nil
	}

	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: expected timestamp,id", ErrMalformedCursor)
	}
	ms, id, err := parseTimeID(parts[0], parts[1])
	if err != nil {
		return nil, err
	}
	return &Cursor{CreatedAt: ms, ID: id}, nil
}

func parseTimeID(msStr, id string) (time.Time, string, error) {
	ms, err := strconv.ParseInt(msStr, 10, 64)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: bad timestamp component", ErrMalformedCursor)
	}
	if id == "" {
		return time.Time{}, "", fmt.Errorf("%w: missing id component", ErrMalformedCursor)
	}
	return time.UnixMilli(ms).UTC(), id, nil
}
