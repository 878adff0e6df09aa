// Package pool owns per-upstream credential pools. One actor goroutine per
// upstream serializes every mutation of credential health; callers talk to
// it through messages and hold leases by value.
package pool

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Yoo1tic/gcli-nexus/internal/db/models"
)

const (
	mailboxSize          = 128
	refreshSweepInterval = 15 * time.Minute
)

// credState is the actor-private health record for one credential.
type credState struct {
	cred models.Credential

	banned      bool
	invalid     bool
	rateLimited map[uint64]time.Time // model mask -> cooldown deadline
	unsupported uint64               // OR of masks this credential cannot serve
	inFlight    uint32
}

func (s *credState) eligible(mask uint64, now time.Time) bool {
	if !s.cred.Status || s.banned || s.invalid {
		return false
	}
	if s.unsupported&mask != 0 {
		return false
	}
	if deadline, ok := s.rateLimited[mask]; ok && now.Before(deadline) {
		return false
	}
	return true
}

func (s *credState) needsRefresh(threshold time.Duration, now time.Time) bool {
	return s.cred.Expiry.Sub(now) < threshold
}

type reportKind int

const (
	reportRelease reportKind = iota
	reportRateLimit
	reportBanned
	reportInvalid
	reportModelUnsupported
)

type getCredentialMsg struct {
	mask  uint64
	reply chan *Lease
}

type reportMsg struct {
	id       int64
	kind     reportKind
	mask     uint64
	cooldown time.Duration
}

type submitMsg struct {
	creds []models.Credential
}

type refreshSweepMsg struct{}

// Persister is the slice of the credential store the actor writes through.
type Persister interface {
	UpdateTokens(id int64, accessToken, refreshToken string, expiry time.Time) error
	SetStatus(id int64, status bool) error
}

// Options configure an actor.
type Options struct {
	Name             string
	Refresher        TokenRefresher
	Store            Persister // may be nil in tests
	RefreshThreshold time.Duration
	RefreshTimeout   time.Duration
}

// Actor is the single-threaded owner of one upstream's credentials.
type Actor struct {
	name             string
	refresher        TokenRefresher
	store            Persister
	refreshThreshold time.Duration
	refreshTimeout   time.Duration

	mailbox chan any
	done    chan struct{}

	states []*credState // actor-goroutine private
}

// Spawn starts the actor over the initial credential set and kicks off the
// proactive refresh pass.
func Spawn(opts Options, initial []models.Credential) *Actor {
	if opts.RefreshThreshold <= 0 {
		opts.RefreshThreshold = 5 * time.Minute
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 30 * time.Second
	}

	a := &Actor{
		name:             opts.Name,
		refresher:        opts.Refresher,
		store:            opts.Store,
		refreshThreshold: opts.RefreshThreshold,
		refreshTimeout:   opts.RefreshTimeout,
		mailbox:          make(chan any, mailboxSize),
		done:             make(chan struct{}),
	}
	for _, cred := range initial {
		a.states = append(a.states, &credState{
			cred:        cred,
			rateLimited: make(map[uint64]time.Time),
		})
	}

	go a.run()
	go a.refreshLoop()

	a.send(refreshSweepMsg{})
	log.Infof("[%s] credential pool started with %d credentials", a.name, len(initial))
	return a
}

// Stop terminates the actor.
func (a *Actor) Stop() {
	close(a.done)
}

// GetCredential leases a credential eligible for the model mask, or returns
// nil when none qualifies. Cancellation-safe: a lease granted after the
// caller gave up is released immediately.
func (a *Actor) GetCredential(ctx context.Context, mask uint64) (*Lease, error) {
	reply := make(chan *Lease, 1)

	select {
	case a.mailbox <- getCredentialMsg{mask: mask, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.done:
		return nil, context.Canceled
	}

	select {
	case lease := <-reply:
		return lease, nil
	case <-ctx.Done():
		go func() {
			if lease := <-reply; lease != nil {
				lease.Release()
			}
		}()
		return nil, ctx.Err()
	}
}

// SubmitCredentials ingests newly provisioned or re-provisioned credentials.
func (a *Actor) SubmitCredentials(creds []models.Credential) {
	a.send(submitMsg{creds: creds})
}

func (a *Actor) send(msg any) {
	select {
	case a.mailbox <- msg:
	case <-a.done:
	}
}

func (a *Actor) refreshLoop() {
	ticker := time.NewTicker(refreshSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.send(refreshSweepMsg{})
		case <-a.done:
			return
		}
	}
}

func (a *Actor) run() {
	for {
		select {
		case msg := <-a.mailbox:
			switch m := msg.(type) {
			case getCredentialMsg:
				m.reply <- a.handleGet(m.mask)
			case reportMsg:
				a.handleReport(m)
			case submitMsg:
				a.handleSubmit(m.creds)
			case refreshSweepMsg:
				a.handleRefreshSweep()
			}
		case <-a.done:
			return
		}
	}
}

// handleGet implements the lease algorithm: filter by eligibility (sweeping
// expired cooldowns as it goes), refresh the chosen credential when its
// token is close to expiry, then hand out the least-loaded credential with
// the lowest id as tie-break.
func (a *Actor) handleGet(mask uint64) *Lease {
	now := time.Now()

	var eligible []*credState
	for _, state := range a.states {
		for m, deadline := range state.rateLimited {
			if !now.Before(deadline) {
				delete(state.rateLimited, m)
			}
		}
		if state.eligible(mask, now) {
			eligible = append(eligible, state)
		}
	}

	for len(eligible) > 0 {
		best := eligible[0]
		bestIdx := 0
		for i, state := range eligible[1:] {
			if state.inFlight < best.inFlight ||
				(state.inFlight == best.inFlight && state.cred.ID < best.cred.ID) {
				best = state
				bestIdx = i + 1
			}
		}

		if best.needsRefresh(a.refreshThreshold, time.Now()) {
			if err := a.refreshOne(best); err != nil {
				log.Warnf("[%s] credential %d refresh failed, excluded: %v", a.name, best.cred.ID, err)
				eligible = append(eligible[:bestIdx], eligible[bestIdx+1:]...)
				continue
			}
		}

		best.inFlight++
		return &Lease{
			Credential: Credential{
				ID:          best.cred.ID,
				ProjectID:   best.cred.ProjectID,
				AccessToken: best.cred.AccessToken,
			},
			actor: a,
		}
	}
	return nil
}

func (a *Actor) handleReport(m reportMsg) {
	state := a.stateByID(m.id)
	if state == nil {
		return
	}

	switch m.kind {
	case reportRateLimit:
		deadline := time.Now().Add(m.cooldown)
		if existing, ok := state.rateLimited[m.mask]; !ok || deadline.After(existing) {
			state.rateLimited[m.mask] = deadline
		}
		log.Infof("[%s] credential %d rate limited for %v (mask %#x)", a.name, m.id, m.cooldown, m.mask)
	case reportBanned:
		state.banned = true
		log.Warnf("[%s] credential %d banned", a.name, m.id)
	case reportInvalid:
		state.invalid = true
		log.Warnf("[%s] credential %d invalid", a.name, m.id)
	case reportModelUnsupported:
		state.unsupported |= m.mask
		log.Infof("[%s] credential %d does not support mask %#x", a.name, m.id, m.mask)
	case reportRelease:
	}

	if state.inFlight > 0 {
		state.inFlight--
	}
}

func (a *Actor) handleSubmit(creds []models.Credential) {
	for _, cred := range creds {
		existing := a.stateByProject(cred.ProjectID)
		if existing == nil {
			a.states = append(a.states, &credState{
				cred:        cred,
				rateLimited: make(map[uint64]time.Time),
			})
			log.Infof("[%s] credential %d (%s) joined the pool", a.name, cred.ID, cred.ProjectID)
			continue
		}
		// Re-provisioned credential: fresh tokens clear prior health marks.
		existing.cred = cred
		existing.banned = false
		existing.invalid = false
		existing.unsupported = 0
		existing.rateLimited = make(map[uint64]time.Time)
		log.Infof("[%s] credential %d (%s) re-provisioned", a.name, cred.ID, cred.ProjectID)
	}
}

func (a *Actor) handleRefreshSweep() {
	now := time.Now()
	for _, state := range a.states {
		if !state.cred.Status || state.banned || state.invalid {
			continue
		}
		if !state.needsRefresh(a.refreshThreshold, now) {
			continue
		}
		if err := a.refreshOne(state); err != nil {
			log.Warnf("[%s] proactive refresh of credential %d failed: %v", a.name, state.cred.ID, err)
		}
	}
}

// refreshOne refreshes a credential's access token on the actor goroutine.
// Mailbox serialization is the de-dup: every caller queued behind this
// refresh observes the fresh token. Permanent failures deactivate the row.
func (a *Actor) refreshOne(state *credState) error {
	if a.refresher == nil {
		return errNoRefresher
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.refreshTimeout)
	defer cancel()

	token, err := a.refresher.Refresh(ctx, state.cred.RefreshToken)
	if err != nil {
		state.invalid = true
		if isPermanentRefreshError(err) && a.store != nil {
			if dbErr := a.store.SetStatus(state.cred.ID, false); dbErr != nil {
				log.Errorf("[%s] persist disabled status for %d: %v", a.name, state.cred.ID, dbErr)
			}
		}
		return err
	}

	rotated := ""
	if token.RefreshToken != "" && token.RefreshToken != state.cred.RefreshToken {
		rotated = token.RefreshToken
		state.cred.RefreshToken = token.RefreshToken
		log.Infof("[%s] rotated refresh token for credential %d", a.name, state.cred.ID)
	}
	state.cred.AccessToken = token.AccessToken
	state.cred.Expiry = token.Expiry

	if a.store != nil {
		if err := a.store.UpdateTokens(state.cred.ID, token.AccessToken, rotated, token.Expiry); err != nil {
			log.Errorf("[%s] persist refreshed token for %d: %v", a.name, state.cred.ID, err)
		}
	}

	log.Infof("[%s] refreshed credential %d (expires %s)", a.name, state.cred.ID, token.Expiry.Format(time.RFC3339))
	return nil
}

func (a *Actor) stateByID(id int64) *credState {
	for _, state := range a.states {
		if state.cred.ID == id {
			return state
		}
	}
	return nil
}

func (a *Actor) stateByProject(projectID string) *credState {
	for _, state := range a.states {
		if state.cred.ProjectID == projectID {
			return state
		}
	}
	return nil
}
