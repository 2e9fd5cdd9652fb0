// Package cluster detects companies where several senior insiders bought
// stock within a sliding time window.
//
// For every purchase p of a company the window is every purchase q of the
// same company with |q.Timestamp - p.Timestamp| <= WindowDays*86400. p is a
// qualifying candidate when, inside its window:
//
//   - the distinct titles cover every required role,
//   - at least MinInsiders distinct insiders bought,
//   - at least one purchase has a value strictly above MinValue.
//
// A company is reported once, with its latest qualifying candidate.
package cluster

import (
	"sort"
	"time"

	"github.com/bighogz/insider-clusters/internal/models"
)

// Detect evaluates the criteria over purchases of any number of companies.
// Hits are sorted by ticker. The input slice is not modified.
func Detect(purchases []models.Purchase, c Criteria) []models.ClusterHit {
	byCompany := make(map[int64][]models.Purchase)
	for _, p := range purchases {
		byCompany[p.CompanyID] = append(byCompany[p.CompanyID], p)
	}

	hits := make([]models.ClusterHit, 0)
	for _, ps := range byCompany {
		if ts, ok := latestQualifying(ps, c); ok {
			hits = append(hits, models.ClusterHit{Ticker: ps[0].Ticker, Timestamp: ts})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Ticker < hits[j].Ticker })
	return hits
}

// latestQualifying walks the purchases of one company in time order. Both
// window edges only move forward, so each purchase enters and leaves the
// window once.
func latestQualifying(ps []models.Purchase, c Criteria) (int64, bool) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].Timestamp != ps[j].Timestamp {
			return ps[i].Timestamp < ps[j].Timestamp
		}
		return ps[i].TransactionID < ps[j].TransactionID
	})

	roles := c.Roles()
	win := newWindow(roles, c.MinValue)
	span := c.WindowSeconds()

	var latest int64
	found := false
	lo, hi := 0, 0
	for i := range ps {
		t := ps[i].Timestamp
		for hi < len(ps) && ps[hi].Timestamp <= t+span {
			win.add(ps[hi])
			hi++
		}
		for lo < hi && ps[lo].Timestamp < t-span {
			win.remove(ps[lo])
			lo++
		}
		if win.qualifies(len(roles), c.MinInsiders) {
			latest, found = t, true
		}
	}
	return latest, found
}

type window struct {
	required map[string]bool
	minValue float64
	insiders map[int64]int
	roles    map[string]int
	large    int
}

func newWindow(roles []string, minValue float64) *window {
	req := make(map[string]bool, len(roles))
	for _, r := range roles {
		req[r] = true
	}
	return &window{
		required: req,
		minValue: minValue,
		insiders: make(map[int64]int),
		roles:    make(map[string]int),
	}
}

func (w *window) add(p models.Purchase) {
	w.insiders[p.InsiderID]++
	for _, t := range p.Titles {
		if w.required[t] {
			w.roles[t]++
		}
	}
	if p.Value > w.minValue {
		w.large++
	}
}

func (w *window) remove(p models.Purchase) {
	if w.insiders[p.InsiderID]--; w.insiders[p.InsiderID] <= 0 {
		delete(w.insiders, p.InsiderID)
	}
	for _, t := range p.Titles {
		if !w.required[t] {
			continue
		}
		if w.roles[t]--; w.roles[t] <= 0 {
			delete(w.roles, t)
		}
	}
	if p.Value > w.minValue {
		w.large--
	}
}

func (w *window) qualifies(nRoles, minInsiders int) bool {
	return len(w.roles) >= nRoles && len(w.insiders) >= minInsiders && w.large > 0
}

// Fresh drops hits whose timestamp is maxAge or more before now. A
// non-positive maxAge keeps every hit.
func Fresh(hits []models.ClusterHit, now time.Time, maxAge time.Duration) []models.ClusterHit {
	if maxAge <= 0 {
		return hits
	}
	out := make([]models.ClusterHit, 0, len(hits))
	for _, h := range hits {
		if now.Sub(time.Unix(h.Timestamp, 0)) < maxAge {
			out = append(out, h)
		}
	}
	return out
}
