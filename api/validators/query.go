package validators

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/quizlink-backend/pkg/errors"
	"github.com/angelmondragon/quizlink-backend/pkg/types"
)

const dateLayout = "2006-01-02"

func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "%s must be an integer", key).WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "%s must be between %d and %d", key, min, max).WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

type dateRangeQuery struct {
	From string `json:"from" validate:"required,datetime=2006-01-02"`
	To   string `json:"to" validate:"required,datetime=2006-01-02"`
}

// DateRange is an inclusive range of summary dates at UTC midnight.
type DateRange struct {
	From time.Time
	To   time.Time
}

// ParseDateRange reads from/to as YYYY-MM-DD. maxDays bounds the inclusive span.
func ParseDateRange(r *http.Request, maxDays int) (DateRange, error) {
	q := dateRangeQuery{
		From: strings.TrimSpace(r.URL.Query().Get("from")),
		To:   strings.TrimSpace(r.URL.Query().Get("to")),
	}
	if err := ValidateStruct(&q); err != nil {
		return DateRange{}, err
	}
	from, _ := time.Parse(dateLayout, q.From)
	to, _ := time.Parse(dateLayout, q.To)
	if to.Before(from) {
		return DateRange{}, pkgerrors.New(pkgerrors.CodeValidation, "from must not be after to").
			WithDetails(map[string]any{"from": q.From, "to": q.To})
	}
	if maxDays > 0 && int(to.Sub(from).Hours()/24)+1 > maxDays {
		return DateRange{}, pkgerrors.New(pkgerrors.CodeValidation, "date range too large").
			WithDetails(map[string]any{"max_days": maxDays})
	}
	return DateRange{From: from, To: to}, nil
}

type timeRangeQuery struct {
	From string `json:"from" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	To   string `json:"to" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
}

// ParseTimeRange reads from/to as RFC3339 instants forming a half-open range.
func ParseTimeRange(r *http.Request, maxSpan time.Duration) (types.TimeRange, error) {
	q := timeRangeQuery{
		From: strings.TrimSpace(r.URL.Query().Get("from")),
		To:   strings.TrimSpace(r.URL.Query().Get("to")),
	}
	if err := ValidateStruct(&q); err != nil {
		return types.TimeRange{}, err
	}
	from, _ := time.Parse(time.RFC3339, q.From)
	to, _ := time.Parse(time.RFC3339, q.To)
	window := types.NewTimeRange(from, to)
	if window.IsEmpty() {
		return types.TimeRange{}, pkgerrors.New(pkgerrors.CodeValidation, "from must precede to").
			WithDetails(map[string]any{"from": q.From, "to": q.To})
	}
	if maxSpan > 0 && window.Duration() > maxSpan {
		return types.TimeRange{}, pkgerrors.New(pkgerrors.CodeValidation, "time range too large").
			WithDetails(map[string]any{"max_hours": int(maxSpan.Hours())})
	}
	return window, nil
}
