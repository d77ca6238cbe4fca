package model

import "time"

const (
	QuotaStatusOK       = "OK"
	QuotaStatusExceeded = "QUOTA_EXCEEDED"
)

// QuotaState is the persisted state of the provider call ledger.
type QuotaState struct {
	Total           int64     `json:"total_requests"`
	WindowCalls     int64     `json:"window_requests"`
	WindowStartedAt time.Time `json:"window_started_at"`
	LastCallAt      time.Time `json:"last_request"`
}

// QuotaSnapshot is a point-in-time view of the ledger against its ceiling.
type QuotaSnapshot struct {
	Total           int64      `json:"total_requests"`
	Ceiling         int64      `json:"max_requests"`
	Remaining       int64      `json:"remaining_requests"`
	PercentUsed     float64    `json:"quota_percentage"`
	WindowCalls     int64      `json:"daily_requests"`
	WindowStartedAt *time.Time `json:"window_started_at,omitempty"`
	LastCallAt      *time.Time `json:"last_request,omitempty"`
	Status          string     `json:"status"`
}

// SnapshotOf derives a snapshot from the state and ceiling.
// Window calls from an expired window read as zero.
func SnapshotOf(st QuotaState, ceiling int64, window time.Duration, now time.Time) QuotaSnapshot {
	s := QuotaSnapshot{Total: st.Total, Ceiling: ceiling, WindowCalls: st.WindowCalls}
	if !st.WindowStartedAt.IsZero() {
		ws := st.WindowStartedAt
		s.WindowStartedAt = &ws
		if window > 0 && !now.Before(ws.Add(window)) {
			s.WindowCalls = 0
		}
	}
	if !st.LastCallAt.IsZero() {
		lc := st.LastCallAt
		s.LastCallAt = &lc
	}
	s.Remaining = ceiling - st.Total
	if s.Remaining < 0 {
		s.Remaining = 0
	}
	if ceiling > 0 {
		s.PercentUsed = float64(int64(float64(st.Total)/float64(ceiling)*10000)) / 100
	}
	s.Status = QuotaStatusOK
	if s.Remaining == 0 {
		s.Status = QuotaStatusExceeded
	}
	return s
}
