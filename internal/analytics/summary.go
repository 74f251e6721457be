package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// SummaryKey identifies one daily rollup row.
type SummaryKey struct {
	ShopID string
	QuizID string
	Date   time.Time
}

// Equal compares keys by calendar instant rather than time.Time identity.
func (k SummaryKey) Equal(other SummaryKey) bool {
	return k.ShopID == other.ShopID && k.QuizID == other.QuizID && k.Date.Equal(other.Date)
}

func (k SummaryKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.ShopID, k.QuizID, k.Date.Format(time.DateOnly))
}

// SummaryDelta is the signed increment applied to a rollup row.
type SummaryDelta struct {
	Sessions         int64
	Completed        int64
	AttributedOrders int64
	Revenue          decimal.Decimal
}

// IsZero reports whether applying the delta would change nothing.
func (d SummaryDelta) IsZero() bool {
	return d.Sessions == 0 && d.Completed == 0 && d.AttributedOrders == 0 && d.Revenue.IsZero()
}

func (d SummaryDelta) add(other SummaryDelta) SummaryDelta {
	return SummaryDelta{
		Sessions:         d.Sessions + other.Sessions,
		Completed:        d.Completed + other.Completed,
		AttributedOrders: d.AttributedOrders + other.AttributedOrders,
		Revenue:          d.Revenue.Add(other.Revenue),
	}
}

// AppliedDelta pairs a rollup key with the delta written to it.
type AppliedDelta struct {
	Key   SummaryKey
	Delta SummaryDelta
}

// SummaryDate truncates t to its calendar day in loc, stored as UTC midnight.
func SummaryDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type deltaSet map[string]*AppliedDelta

func (s deltaSet) add(key SummaryKey, delta SummaryDelta) {
	id := key.String()
	entry, ok := s[id]
	if !ok {
		entry = &AppliedDelta{Key: key}
		s[id] = entry
	}
	entry.Delta = entry.Delta.add(delta)
}

// sorted returns the non-zero deltas ordered by shop, quiz and date.
func (s deltaSet) sorted() []AppliedDelta {
	out := make([]AppliedDelta, 0, len(s))
	for _, entry := range s {
		if entry.Delta.IsZero() {
			continue
		}
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key, out[j].Key
		if a.ShopID != b.ShopID {
			return a.ShopID < b.ShopID
		}
		if a.QuizID != b.QuizID {
			return a.QuizID < b.QuizID
		}
		return a.Date.Before(b.Date)
	})
	return out
}
