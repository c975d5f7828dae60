// Package stats reduces the key store and usage ledger into dashboard figures.
package stats

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rsclarke/keyward/internal/models"
)

const (
	// TopKeysLimit is the number of keys reported in Summary.TopKeys.
	TopKeysLimit = 5
	// DefaultDays is the series length used when DailySeries is asked for none.
	DefaultDays = 7

	dateLayout = "2006-01-02"
)

// Source is the read side of the key store and usage ledger.
type Source interface {
	ListKeys(ctx context.Context) ([]models.APIKey, error)
	ListEvents(ctx context.Context) ([]models.UsageEvent, error)
}

// KeyUsage is one entry of the top keys table.
type KeyUsage struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Requests int64  `json:"requests"`
}

// Summary holds headline usage figures.
type Summary struct {
	TotalKeys         int        `json:"totalKeys"`
	ActiveKeys        int        `json:"activeKeys"`
	TotalRequests     int64      `json:"totalRequests"`
	RequestsToday     int        `json:"requestsToday"`
	AvgResponseTimeMs int64      `json:"avgResponseTime"`
	TopKeys           []KeyUsage `json:"topKeys"`
}

// DailyCount is the number of ledger events on one calendar day.
type DailyCount struct {
	Date     string `json:"date"`
	Requests int    `json:"requests"`
}

// Aggregator computes Summary and DailySeries. Calendar days are taken in
// Location, UTC when nil.
type Aggregator struct {
	Source   Source
	Location *time.Location
	Now      func() time.Time
}

// New creates an Aggregator over src using UTC days.
func New(src Source) *Aggregator {
	return &Aggregator{Source: src, Location: time.UTC, Now: time.Now}
}

func (a *Aggregator) loc() *time.Location {
	if a.Location != nil {
		return a.Location
	}
	return time.UTC
}

func (a *Aggregator) today() time.Time {
	now := time.Now()
	if a.Now != nil {
		now = a.Now()
	}
	return now.In(a.loc())
}

func (a *Aggregator) day(t time.Time) string {
	return t.In(a.loc()).Format(dateLayout)
}

// Summary computes the headline figures.
func (a *Aggregator) Summary(ctx context.Context) (*Summary, error) {
	keys, err := a.Source.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	events, err := a.Source.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	s := &Summary{TotalKeys: len(keys), TopKeys: []KeyUsage{}}
	for _, k := range keys {
		if k.Active() {
			s.ActiveKeys++
		}
		s.TotalRequests += k.RequestCount
	}

	today := a.today().Format(dateLayout)
	var (
		succeeded int64
		totalMs   int64
	)
	for _, e := range events {
		if a.day(e.Timestamp) == today {
			s.RequestsToday++
		}
		if e.Success {
			succeeded++
			totalMs += e.ResponseTimeMs
		}
	}
	if succeeded > 0 {
		s.AvgResponseTimeMs = int64(math.Round(float64(totalMs) / float64(succeeded)))
	}

	ranked := make([]models.APIKey, len(keys))
	copy(ranked, keys)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RequestCount > ranked[j].RequestCount
	})
	if len(ranked) > TopKeysLimit {
		ranked = ranked[:TopKeysLimit]
	}
	for _, k := range ranked {
		s.TopKeys = append(s.TopKeys, KeyUsage{ID: k.ID, Name: k.Name, Requests: k.RequestCount})
	}

	return s, nil
}

// DailySeries returns event counts for the trailing days calendar days
// including today, oldest first. Days without events are reported as zero.
func (a *Aggregator) DailySeries(ctx context.Context, days int) ([]DailyCount, error) {
	if days <= 0 {
		days = DefaultDays
	}
	events, err := a.Source.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	now := a.today()
	series := make([]DailyCount, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		d := time.Date(now.Year(), now.Month(), now.Day()-(days-1-i), 0, 0, 0, 0, a.loc())
		series[i].Date = d.Format(dateLayout)
		index[series[i].Date] = i
	}

	for _, e := range events {
		if i, ok := index[a.day(e.Timestamp)]; ok {
			series[i].Requests++
		}
	}
	return series, nil
}
