package query

import (
	"github.com/shopspring/decimal"
)

// Extreme is a value together with the period it occurred in.
type Extreme struct {
	Period int     `json:"period"`
	Value  float64 `json:"value"`
}

// Summary holds the descriptive statistics of a series.
type Summary struct {
	Count       int     `json:"count"`
	FirstPeriod int     `json:"first_period"`
	LastPeriod  int     `json:"last_period"`
	Mean        float64 `json:"mean"`
	Max         Extreme `json:"max"`
	Min         Extreme `json:"min"`
	Latest      Extreme `json:"latest"`
	// MeanChangePct is the average of the defined period-over-period
	// changes, nil when none is defined.
	MeanChangePct *float64 `json:"mean_change_pct"`
}

// Summarize computes statistics over points sorted by period. ok is false
// for an empty series.
func Summarize(points []Point) (s Summary, ok bool) {
	if len(points) == 0 {
		return Summary{}, false
	}
	s.Count = len(points)
	s.FirstPeriod = points[0].Period
	s.LastPeriod = points[len(points)-1].Period
	s.Max = Extreme(points[0])
	s.Min = Extreme(points[0])
	s.Latest = Extreme(points[len(points)-1])

	var sum float64
	for _, p := range points {
		sum += p.Value
		if p.Value > s.Max.Value {
			s.Max = Extreme(p)
		}
		if p.Value < s.Min.Value {
			s.Min = Extreme(p)
		}
	}
	s.Mean = sum / float64(len(points))

	var (
		changeSum float64
		changes   int
	)
	for _, c := range PercentChange(points) {
		if c.Pct != nil {
			changeSum += *c.Pct
			changes++
		}
	}
	if changes > 0 {
		m := changeSum / float64(changes)
		s.MeanChangePct = &m
	}
	return s, true
}

// Rounded returns a copy with every value rounded to places decimals for display.
func (s Summary) Rounded(places int32) Summary {
	r := s
	r.Mean = Round(s.Mean, places)
	r.Max.Value = Round(s.Max.Value, places)
	r.Min.Value = Round(s.Min.Value, places)
	r.Latest.Value = Round(s.Latest.Value, places)
	if s.MeanChangePct != nil {
		m := Round(*s.MeanChangePct, places)
		r.MeanChangePct = &m
	}
	return r
}

// Change is the percentage change into Period from the period before it.
type Change struct {
	Period int      `json:"period"`
	Pct    *float64 `json:"pct"`
}

// PercentChange computes (v[t] - v[t-1]) / v[t-1] * 100 for each point of
// a period-sorted series. The change is nil when period t-1 has no value or
// its value is zero.
func PercentChange(points []Point) []Change {
	out := make([]Change, len(points))
	for i, p := range points {
		out[i].Period = p.Period
		if i == 0 {
			continue
		}
		prev := points[i-1]
		if prev.Period != p.Period-1 || prev.Value == 0 {
			continue
		}
		pct := (p.Value - prev.Value) / prev.Value * 100
		out[i].Pct = &pct
	}
	return out
}

// Round rounds half away from zero to places decimals.
func Round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
