package pool

import (
	"sync"
	"time"
)

// Credential is the value copy handed to a caller for one upstream request.
// The actor keeps the authoritative mutable state.
type Credential struct {
	ID          int64
	ProjectID   string
	AccessToken string
}

// Lease is a short-lived exclusive assignment of a credential to one
// in-flight request. Exactly one release-equivalent event fires per lease,
// on every control path: plain Release, or any health report (reports
// release as a side effect). Later calls are no-ops.
type Lease struct {
	Credential

	actor *Actor
	once  sync.Once
}

// Release returns the credential to the pool without a health report.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.actor.send(reportMsg{id: l.ID, kind: reportRelease})
	})
}

// ReportRateLimit puts the credential on cooldown for the model mask.
func (l *Lease) ReportRateLimit(mask uint64, d time.Duration) {
	l.once.Do(func() {
		l.actor.send(reportMsg{id: l.ID, kind: reportRateLimit, mask: mask, cooldown: d})
	})
}

// ReportBanned excludes the credential until operator intervention.
func (l *Lease) ReportBanned() {
	l.once.Do(func() {
		l.actor.send(reportMsg{id: l.ID, kind: reportBanned})
	})
}

// ReportInvalid marks the credential payload as broken.
func (l *Lease) ReportInvalid() {
	l.once.Do(func() {
		l.actor.send(reportMsg{id: l.ID, kind: reportInvalid})
	})
}

// ReportModelUnsupported records that this credential cannot serve the model.
func (l *Lease) ReportModelUnsupported(mask uint64) {
	l.once.Do(func() {
		l.actor.send(reportMsg{id: l.ID, kind: reportModelUnsupported, mask: mask})
	})
}
