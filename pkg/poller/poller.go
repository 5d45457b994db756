// Package poller keeps the administrator's record tables current by
// refetching them from the backend at a fixed interval.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/seatpredictor/seatweb/pkg/apiclient"
	"github.com/seatpredictor/seatweb/pkg/logging"
	"github.com/seatpredictor/seatweb/pkg/models"
)

// Fetcher is the slice of the API client the poller needs.
type Fetcher interface {
	AdminLogins(ctx context.Context, adminUser, adminPass string) ([]models.LoginRecord, error)
	AdminPredictions(ctx context.Context, adminUser, adminPass string) ([]models.PredictionRecord, error)
}

// Snapshot is what the admin view renders: the last successfully fetched
// record set plus any error banner. Unauthorized means a 401 was seen and
// the viewer must re-authenticate.
type Snapshot struct {
	Records      models.AdminRecordSet
	ErrorBanner  string
	Unauthorized bool
}

// Poller periodically refetches the two admin tables. Each fetch carries a
// sequence number; a response that resolves after a newer cycle has already
// replaced its table is discarded rather than overwriting fresher data.
type Poller struct {
	fetcher   Fetcher
	adminUser string
	adminPass string
	interval  time.Duration

	cron    *cron.Cron
	started bool
	nextSeq atomic.Uint64

	mu             sync.RWMutex
	logins         []models.LoginRecord
	predictions    []models.PredictionRecord
	fetchedAt      time.Time
	loginsSeq      uint64
	predictionsSeq uint64
	errorBanner    string
	unauthorized   bool
}

// New creates a poller. It does not start fetching until Start is called.
func New(fetcher Fetcher, adminUser, adminPass string, interval time.Duration) *Poller {
	p := &Poller{
		fetcher:   fetcher,
		adminUser: adminUser,
		adminPass: adminPass,
		interval:  interval,
		cron:      cron.New(),
	}
	p.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		p.Refresh(context.Background())
	}))
	return p
}

// Start begins the fixed-interval refresh schedule. It refreshes once
// immediately, then every interval. Calling Start twice is a no-op, so no
// duplicate concurrent timers can exist.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.cron.Start()
	go p.Refresh(ctx)

	logging.LogInfo("Admin poller started", "interval", p.interval.String())
}

// AcknowledgeUnauthorized consumes the unauthorized verdict after the
// viewer has been redirected to login, so a later admin session can mount
// the view again without looping back to login.
func (p *Poller) AcknowledgeUnauthorized() {
	p.mu.Lock()
	p.unauthorized = false
	p.mu.Unlock()
}

// Stop cancels the refresh schedule. In-flight fetches are not interrupted;
// their results are merged or discarded by the sequence guard as usual.
func (p *Poller) Stop() {
	p.mu.Lock()
	wasStarted := p.started
	p.started = false
	p.mu.Unlock()

	if wasStarted {
		<-p.cron.Stop().Done()
		logging.LogInfo("Admin poller stopped")
	}
}

// Refresh performs one poll cycle: two independent backend calls whose
// results replace their tables wholesale. The calls may complete in either
// order; each is merged as it resolves without waiting for the other.
func (p *Poller) Refresh(ctx context.Context) {
	seq := p.nextSeq.Add(1)
	start := time.Now()

	var wg sync.WaitGroup
	var loginsErr, predictionsErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		logins, err := p.fetcher.AdminLogins(ctx, p.adminUser, p.adminPass)
		if err != nil {
			loginsErr = err
			return
		}
		p.applyLogins(seq, logins)
	}()
	go func() {
		defer wg.Done()
		predictions, err := p.fetcher.AdminPredictions(ctx, p.adminUser, p.adminPass)
		if err != nil {
			predictionsErr = err
			return
		}
		p.applyPredictions(seq, predictions)
	}()
	wg.Wait()

	p.settle(seq, loginsErr, predictionsErr, time.Since(start))
}

func (p *Poller) applyLogins(seq uint64, logins []models.LoginRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if seq < p.loginsSeq {
		logging.LogWarn("Discarded stale login records", "seq", seq, "applied_seq", p.loginsSeq)
		return
	}
	p.logins = logins
	p.loginsSeq = seq
	p.fetchedAt = time.Now()
}

func (p *Poller) applyPredictions(seq uint64, predictions []models.PredictionRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if seq < p.predictionsSeq {
		logging.LogWarn("Discarded stale prediction records", "seq", seq, "applied_seq", p.predictionsSeq)
		return
	}
	p.predictions = predictions
	p.predictionsSeq = seq
	p.fetchedAt = time.Now()
}

// settle records the cycle outcome. A 401 on either call marks the poller
// unauthorized and stops the schedule — no retry; the viewer is sent back
// to login instead. Any other error raises the banner but the last good
// tables stay available.
func (p *Poller) settle(seq uint64, loginsErr, predictionsErr error, elapsed time.Duration) {
	if apiclient.IsUnauthorized(loginsErr) || apiclient.IsUnauthorized(predictionsErr) {
		p.mu.Lock()
		p.unauthorized = true
		p.mu.Unlock()
		logging.LogSecurityEvent("Admin poll unauthorized", "high", "poll_seq", seq)
		go p.Stop()
		return
	}

	p.mu.Lock()
	switch {
	case loginsErr != nil:
		p.errorBanner = "Failed to fetch login records: " + loginsErr.Error()
	case predictionsErr != nil:
		p.errorBanner = "Failed to fetch prediction records: " + predictionsErr.Error()
	default:
		p.errorBanner = ""
	}
	logins, predictions := len(p.logins), len(p.predictions)
	p.mu.Unlock()

	success := loginsErr == nil && predictionsErr == nil
	logging.LogPollCycle(seq, logins, predictions, elapsed, success)
}

// Snapshot returns the current record set for rendering.
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot{
		Records: models.AdminRecordSet{
			Logins:      p.logins,
			Predictions: p.predictions,
			FetchedAt:   p.fetchedAt,
		},
		ErrorBanner:  p.errorBanner,
		Unauthorized: p.unauthorized,
	}
}
