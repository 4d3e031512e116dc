package signal

import (
	"fmt"
	"math"
	"strconv"
)

// SortMode selects the feed ranking strategy.
type SortMode string

const (
	SortLatest           SortMode = "latest"
	SortSeverity         SortMode = "severity"
	SortMixed            SortMode = "mixed"
	SortDistance         SortMode = "distance"
	SortSeverityDistance SortMode = "severity_then_distance"
	SortRecommended      SortMode = "recommended"
)

// DistanceRanked reports whether the mode requires a center point and
// offset pagination.
func (m SortMode) DistanceRanked() bool {
	return m == SortDistance || m == SortSeverityDistance
}

// PaginationMode tags which continuation strategy a query uses. It is
// decided once by the planner; the rest of the pipeline branches on this
// single value instead of re-checking parameter presence.
type PaginationMode int

const (
	PaginateCursor PaginationMode = iota
	PaginateOffset
)

// Pagination is the tagged pagination variant carried by a FeedQuery.
// Cursor is set only in cursor mode; Page/PageSize only in offset mode.
type Pagination struct {
	Mode     PaginationMode
	Cursor   *Cursor
	Page     int
	PageSize int
}

// FeedQuery is a validated, clamped feed query ready for the store.
type FeedQuery struct {
	Center     *Point // nil in global mode
	RadiusKM   float64
	WindowDays int
	Limit      int
	Sort       SortMode
	Global     bool
	Page       Pagination
}

// FeedParams carries the raw request parameters as received from the HTTP
// layer. Empty strings mean "not supplied".
type FeedParams struct {
	Lat      string
	Lng      string
	RadiusKM string
	Days     string
	Limit    string
	Sort     string
	Global   bool
	Cursor   string
	Page     string
	PageSize string
}

// Clamp bounds for feed query parameters.
const (
	defaultRadiusKM = 3.0
	minRadiusKM     = 0.1
	maxRadiusKM     = 10.0

	defaultWindowDays = 3
	minWindowDays     = 1
	maxWindowDays     = 30

	defaultLimit = 10
	minLimit     = 1
	maxLimit     = 50
)

// PlanFeedQuery validates raw parameters and produces a FeedQuery with all
// clamps applied and the pagination mode decided. Nonsensical parameter
// combinations fail with ErrInvalidQuery naming the offending pair; a
// cursor that does not decode for the active sort fails with
// ErrMalformedCursor.
func PlanFeedQuery(p FeedParams) (*FeedQuery, error) {
	sort, err := parseSortMode(p.Sort)
	if err != nil {
		return nil, err
	}

	q := &FeedQuery{
		RadiusKM:   clampFloat(p.RadiusKM, defaultRadiusKM, minRadiusKM, maxRadiusKM),
		WindowDays: clampInt(p.Days, defaultWindowDays, minWindowDays, maxWindowDays),
		Limit:      clampInt(p.Limit, defaultLimit, minLimit, maxLimit),
		Sort:       sort,
		Global:     p.Global,
	}

	center, err := parseCenter(p.Lat, p.Lng)
	if err != nil {
		return nil, err
	}
	q.Center = center

	if sort.DistanceRanked() {
		if q.Global {
			return nil, fmt.Errorf("%w: %s sort cannot be combined with global", ErrInvalidQuery, sort)
		}
		if q.Center == nil {
			return nil, fmt.Errorf("%w: %s sort requires a center point", ErrInvalidQuery, sort)
		}
	} else if q.Center == nil && !q.Global {
		return nil, fmt.Errorf("%w: lat and lng are required unless global is set", ErrInvalidQuery)
	}

	explicitOffset := p.Page != "" || p.PageSize != ""

	switch {
	case sort.DistanceRanked(), sort == SortRecommended && !explicitOffset, explicitOffset:
		// Distance-ranked results have no stable cursor (the center can move
		// between requests), and recommended falls back to offset paging.
		page := clampInt(p.Page, 1, 1, math.MaxInt32)
		pageSize := clampInt(p.PageSize, q.Limit, minLimit, maxLimit)
		q.Page = Pagination{Mode: PaginateOffset, Page: page, PageSize: pageSize}
	default:
		q.Page = Pagination{Mode: PaginateCursor}
		if p.Cursor != "" {
			cur, err := DecodeCursor(sort, p.Cursor)
			if err != nil {
				return nil, err
			}
			q.Page.Cursor = cur
		}
	}

	return q, nil
}

func parseSortMode(s string) (SortMode, error) {
	switch s {
	case "", string(SortLatest):
		return SortLatest, nil
	case string(SortSeverity):
		return SortSeverity, nil
	case string(SortMixed):
		return SortMixed, nil
	case string(SortDistance):
		return SortDistance, nil
	case string(SortSeverityDistance), "sev_distance":
		return SortSeverityDistance, nil
	case string(SortRecommended):
		return SortRecommended, nil
	default:
		return "", fmt.Errorf("%w: unknown sort mode %q", ErrInvalidQuery, s)
	}
}

func parseCenter(latStr, lngStr string) (*Point, error) {
	if latStr == "" && lngStr == "" {
		return nil, nil
	}
	if latStr == "" || lngStr == "" {
		return nil, fmt.Errorf("%w: lat and lng must be supplied together", ErrInvalidQuery)
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: lat is not a number", ErrInvalidQuery)
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: lng is not a number", ErrInvalidQuery)
	}
	if lat < -90 || lat > 90 {
		return nil, fmt.Errorf("%w: lat must be between -90 and 90", ErrInvalidQuery)
	}
	if lng < -180 || lng > 180 {
		return nil, fmt.Errorf("%w: lng must be between -180 and 180", ErrInvalidQuery)
	}
	return &Point{Lat: lat, Lng: lng}, nil
}

func clampFloat(raw string, def, lo, hi float64) float64 {
	v := def
	if raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err == nil && !math.IsNaN(parsed) && !math.IsInf(parsed, 0) {
			v = parsed
		}
	}
	return math.Min(math.Max(v, lo), hi)
}

func clampInt(raw string, def, lo, hi int) int {
	v := def
	if raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err == nil {
			v = parsed
		}
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
