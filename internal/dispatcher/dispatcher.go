// internal/dispatcher/dispatcher.go
package dispatcher

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zapleopard/campaign-dispatcher/internal/events"
	"github.com/zapleopard/campaign-dispatcher/internal/model"
	"github.com/zapleopard/campaign-dispatcher/internal/provider"
	"github.com/zapleopard/campaign-dispatcher/internal/service"
)

// eventEmitter is the slice of events.Emitter the dispatcher uses.
type eventEmitter interface {
	Emit(ctx context.Context, e events.Event) error
}

func newIdempotencyKey() string { return uuid.NewString() }

// CampaignStore defines the campaign methods the dispatcher needs.
type CampaignStore interface {
	ListDispatchable(ctx context.Context, now time.Time) ([]*model.Campaign, error)
	GetByID(ctx context.Context, id int) (*model.Campaign, error)
	GetTemplates(ctx context.Context, campaignID int) ([]model.CampaignTemplate, error)
	UpdateStatus(ctx context.Context, campaignID int, status model.CampaignStatus) error
}

// ContactStore defines the campaign-contact methods the dispatcher needs.
type ContactStore interface {
	ClaimNext(ctx context.Context, campaignID, maxAttempts int, staleAfter time.Duration) (*model.CampaignContact, error)
	ClaimableCount(ctx context.Context, campaignID, maxAttempts int) (int, error)
	MarkSent(ctx context.Context, id int, providerMessageID string) error
	MarkFailed(ctx context.Context, id int, lastError string) error
	MarkFailedPermanent(ctx context.Context, id int, lastError string, maxAttempts int) error
}

// CustomerStore defines the customer methods the dispatcher needs.
type CustomerStore interface {
	GetByID(ctx context.Context, id int) (*model.Customer, error)
}

type Config struct {
	PollInterval    time.Duration
	MinSendDelay    time.Duration
	MaxSendDelay    time.Duration
	MaxSendAttempts int
	StaleClaimAfter time.Duration
}

// Dispatcher runs one pacing stream per dispatchable campaign. Streams are
// concurrent relative to each other but strictly sequential inside: within a
// campaign no two sends are ever in flight at once, because the randomized
// inter-send delay is the rate-limiting control.
type Dispatcher struct {
	campaigns CampaignStore
	contacts  ContactStore
	customers CustomerStore
	sender    provider.Sender
	emitter   eventEmitter
	cfg       Config
	logger    zerolog.Logger

	// stream registry, owned by this dispatcher instance
	mu      sync.Mutex
	streams map[int]struct{}
	wg      sync.WaitGroup

	// test seams: interruptible sleep and per-stream rand seeding
	sleep func(ctx context.Context, d time.Duration) bool
	seed  func(campaignID int) int64

	newIdempotencyKey func() string
}

func New(
	campaigns CampaignStore,
	contacts ContactStore,
	customers CustomerStore,
	sender provider.Sender,
	emitter eventEmitter,
	cfg Config,
	logger zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		campaigns:         campaigns,
		contacts:          contacts,
		customers:         customers,
		sender:            sender,
		emitter:           emitter,
		cfg:               cfg,
		logger:            logger,
		streams:           make(map[int]struct{}),
		sleep:             sleepCtx,
		seed:              func(campaignID int) int64 { return time.Now().UnixNano() ^ int64(campaignID) },
		newIdempotencyKey: newIdempotencyKey,
	}
}

// Run polls for dispatchable campaigns until the context is canceled, keeping
// exactly one stream per campaign alive. Because all dispatch state lives in
// campaign_contacts rows, a restart simply resumes from the pending rows.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info().
		Dur("poll_interval", d.cfg.PollInterval).
		Dur("min_send_delay", d.cfg.MinSendDelay).
		Dur("max_send_delay", d.cfg.MaxSendDelay).
		Msg("pacing dispatcher started")

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	d.syncStreams(ctx)
	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			d.logger.Info().Msg("pacing dispatcher stopped")
			return
		case <-ticker.C:
			d.syncStreams(ctx)
		}
	}
}

func (d *Dispatcher) syncStreams(ctx context.Context) {
	campaigns, err := d.campaigns.ListDispatchable(ctx, time.Now())
	if err != nil {
		d.logger.Error().Err(err).Msg("list dispatchable campaigns failed")
		return
	}

	for _, c := range campaigns {
		d.startStream(ctx, c)
	}
}

func (d *Dispatcher) startStream(ctx context.Context, campaign *model.Campaign) {
	d.mu.Lock()
	if _, running := d.streams[campaign.ID]; running {
		d.mu.Unlock()
		return
	}
	d.streams[campaign.ID] = struct{}{}
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			delete(d.streams, campaign.ID)
			d.mu.Unlock()
		}()
		d.runStream(ctx, campaign.ID)
	}()
}

// runStream paces one campaign. The campaign status is re-read before every
// claim, so pause/cancel takes effect at the next suspension point without
// interrupting a send already in flight.
func (d *Dispatcher) runStream(ctx context.Context, campaignID int) {
	logger := d.logger.With().Int("campaign_id", campaignID).Logger()
	rng := rand.New(rand.NewSource(d.seed(campaignID)))
	logger.Info().Msg("pacing stream started")

	for {
		if ctx.Err() != nil {
			return
		}

		campaign, err := d.campaigns.GetByID(ctx, campaignID)
		if err != nil {
			logger.Error().Err(err).Msg("reload campaign failed, stopping stream")
			return
		}
		if campaign.Status != model.CampaignActive {
			logger.Info().Str("status", string(campaign.Status)).Msg("campaign no longer active, stream stopping")
			return
		}
		if campaign.EndDate != nil && campaign.EndDate.Before(time.Now()) {
			logger.Info().Msg("campaign past end date, stream stopping")
			return
		}

		contact, err := d.contacts.ClaimNext(ctx, campaignID, d.cfg.MaxSendAttempts, d.cfg.StaleClaimAfter)
		if err != nil {
			logger.Error().Err(err).Msg("claim next contact failed")
			if !d.sleep(ctx, d.cfg.PollInterval) {
				return
			}
			continue
		}
		if contact == nil {
			remaining, err := d.contacts.ClaimableCount(ctx, campaignID, d.cfg.MaxSendAttempts)
			if err != nil {
				logger.Error().Err(err).Msg("count claimable contacts failed")
				return
			}
			if remaining == 0 {
				if err := d.campaigns.UpdateStatus(ctx, campaignID, model.CampaignCompleted); err != nil {
					logger.Error().Err(err).Msg("mark campaign completed failed")
					return
				}
				logger.Info().Msg("campaign completed")
				return
			}
			// Rows are claimed by another dispatcher or cooling off; try later.
			if !d.sleep(ctx, d.cfg.PollInterval) {
				return
			}
			continue
		}

		attempted := d.processContact(ctx, logger, rng, campaign, contact)

		// Pace only actual provider calls; a contact rejected before the send
		// (unrenderable template, missing customer) costs no delay. The delay
		// is also skipped when nothing claimable remains, so completion is
		// detected right after the last send instead of one delay later.
		if attempted {
			remaining, err := d.contacts.ClaimableCount(ctx, campaignID, d.cfg.MaxSendAttempts)
			if err != nil {
				logger.Error().Err(err).Msg("count claimable contacts failed")
				remaining = 1 // assume more work; the delay stays safe
			}
			if remaining > 0 && !d.sleep(ctx, d.sendDelay(rng)) {
				return
			}
		}
	}
}

// processContact renders and sends one message. It reports whether the
// provider was actually called.
func (d *Dispatcher) processContact(ctx context.Context, logger zerolog.Logger, rng *rand.Rand, campaign *model.Campaign, contact *model.CampaignContact) bool {
	customer, err := d.customers.GetByID(ctx, contact.CustomerID)
	if err != nil {
		logger.Error().Err(err).Int("contact_id", contact.ID).Msg("load customer failed")
		d.failContact(ctx, logger, contact, "load customer: "+err.Error(), false)
		return false
	}
	if customer == nil {
		d.failContact(ctx, logger, contact, "customer no longer exists", true)
		return false
	}

	templates, err := d.campaigns.GetTemplates(ctx, campaign.ID)
	if err != nil {
		logger.Error().Err(err).Int("contact_id", contact.ID).Msg("load templates failed")
		d.failContact(ctx, logger, contact, "load templates: "+err.Error(), false)
		return false
	}
	if len(templates) == 0 {
		d.failContact(ctx, logger, contact, "campaign has no templates", true)
		return false
	}

	body := templates[rng.Intn(len(templates))].Body
	rendered, err := service.RenderTemplate(body, service.CustomerData(customer))
	if err != nil {
		d.failContact(ctx, logger, contact, "render: "+err.Error(), true)
		return false
	}

	result, err := d.sender.Send(ctx, provider.SendRequest{
		To:             customer.Phone,
		Body:           rendered,
		IdempotencyKey: d.newIdempotencyKey(),
	})
	if err != nil {
		d.failContact(ctx, logger, contact, err.Error(), provider.IsPermanent(err))
		return true
	}

	if err := d.contacts.MarkSent(ctx, contact.ID, result.ProviderMessageID); err != nil {
		// The message left; losing the status write reopens the at-least-once
		// window via the stale-claim reclaim.
		logger.Error().Err(err).Int("contact_id", contact.ID).Msg("mark sent failed")
		return true
	}

	logger.Info().
		Int("contact_id", contact.ID).
		Int("customer_id", contact.CustomerID).
		Str("provider_message_id", result.ProviderMessageID).
		Msg("message sent")

	d.emit(ctx, logger, events.Event{
		Type:              events.ContactSent,
		CampaignID:        contact.CampaignID,
		CampaignContactID: contact.ID,
		CustomerID:        contact.CustomerID,
	})
	return true
}

func (d *Dispatcher) failContact(ctx context.Context, logger zerolog.Logger, contact *model.CampaignContact, reason string, permanent bool) {
	var err error
	if permanent {
		err = d.contacts.MarkFailedPermanent(ctx, contact.ID, reason, d.cfg.MaxSendAttempts)
	} else {
		err = d.contacts.MarkFailed(ctx, contact.ID, reason)
	}
	if err != nil {
		logger.Error().Err(err).Int("contact_id", contact.ID).Msg("mark failed failed")
		return
	}

	attempts := contact.AttemptCount + 1
	terminal := permanent || attempts >= d.cfg.MaxSendAttempts
	logger.Warn().
		Int("contact_id", contact.ID).
		Int("attempt_count", attempts).
		Bool("terminal", terminal).
		Str("reason", reason).
		Msg("send failed")

	d.emit(ctx, logger, events.Event{
		Type:              events.ContactFailed,
		CampaignID:        contact.CampaignID,
		CampaignContactID: contact.ID,
		CustomerID:        contact.CustomerID,
		Error:             reason,
		Terminal:          terminal,
	})
}

func (d *Dispatcher) emit(ctx context.Context, logger zerolog.Logger, e events.Event) {
	if err := d.emitter.Emit(ctx, e); err != nil {
		logger.Error().Err(err).Str("type", string(e.Type)).Msg("emit event failed")
	}
}

// sendDelay draws the inter-send delay uniformly from [MinSendDelay,
// MaxSendDelay] using the stream-owned rand source.
func (d *Dispatcher) sendDelay(rng *rand.Rand) time.Duration {
	span := d.cfg.MaxSendDelay - d.cfg.MinSendDelay
	if span <= 0 {
		return d.cfg.MinSendDelay
	}
	return d.cfg.MinSendDelay + time.Duration(rng.Int63n(int64(span)+1))
}

// sleepCtx waits d or until ctx is canceled; false means canceled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
