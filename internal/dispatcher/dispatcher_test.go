package dispatcher

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapleopard/campaign-dispatcher/internal/events"
	"github.com/zapleopard/campaign-dispatcher/internal/model"
	"github.com/zapleopard/campaign-dispatcher/internal/provider"
)

// fakeStore backs one campaign's contacts in memory and implements the three
// store interfaces the dispatcher depends on.
type fakeStore struct {
	mu        sync.Mutex
	campaign  *model.Campaign
	templates []model.CampaignTemplate
	contacts  []*model.CampaignContact
	customers map[int]*model.Customer
}

func (f *fakeStore) ListDispatchable(_ context.Context, _ time.Time) ([]*model.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.campaign.Status == model.CampaignActive {
		cp := *f.campaign
		return []*model.Campaign{&cp}, nil
	}
	return nil, nil
}

func (f *fakeStore) GetByID(_ context.Context, _ int) (*model.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.campaign
	return &cp, nil
}

func (f *fakeStore) GetTemplates(_ context.Context, _ int) ([]model.CampaignTemplate, error) {
	return f.templates, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, _ int, status model.CampaignStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.campaign.Status = status
	return nil
}

func (f *fakeStore) setCampaignStatus(status model.CampaignStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.campaign.Status = status
}

func claimBefore(a, b *model.CampaignContact) bool {
	if a.AttemptCount != b.AttemptCount {
		return a.AttemptCount < b.AttemptCount
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (f *fakeStore) ClaimNext(_ context.Context, campaignID, maxAttempts int, _ time.Duration) (*model.CampaignContact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var best *model.CampaignContact
	for _, c := range f.contacts {
		if c.CampaignID != campaignID {
			continue
		}
		claimable := c.Status == model.ContactPending ||
			(c.Status == model.ContactFailed && c.AttemptCount < maxAttempts)
		if !claimable {
			continue
		}
		if best == nil || claimBefore(c, best) {
			best = c
		}
	}
	if best == nil {
		return nil, nil
	}

	now := time.Now()
	best.Status = model.ContactSending
	best.LastAttemptAt = &now
	cp := *best
	return &cp, nil
}

func (f *fakeStore) ClaimableCount(_ context.Context, campaignID, maxAttempts int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, c := range f.contacts {
		if c.CampaignID != campaignID {
			continue
		}
		switch {
		case c.Status == model.ContactPending, c.Status == model.ContactSending:
			count++
		case c.Status == model.ContactFailed && c.AttemptCount < maxAttempts:
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) find(id int) *model.CampaignContact {
	for _, c := range f.contacts {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (f *fakeStore) MarkSent(_ context.Context, id int, providerMessageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.find(id)
	c.Status = model.ContactSent
	c.ProviderMessageID = providerMessageID
	c.AttemptCount++
	c.LastError = ""
	return nil
}

func (f *fakeStore) MarkFailed(_ context.Context, id int, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.find(id)
	c.Status = model.ContactFailed
	c.LastError = lastError
	c.AttemptCount++
	return nil
}

func (f *fakeStore) MarkFailedPermanent(_ context.Context, id int, lastError string, maxAttempts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.find(id)
	c.Status = model.ContactFailed
	c.LastError = lastError
	if c.AttemptCount+1 > maxAttempts {
		c.AttemptCount++
	} else {
		c.AttemptCount = maxAttempts
	}
	return nil
}

// fakeSender records the order of provider calls and fails scripted phones.
type fakeSender struct {
	mu        sync.Mutex
	sent      []string
	transient map[string]int
	permanent map[string]bool
	onSend    func(to string)
	n         int
}

func (s *fakeSender) Send(_ context.Context, req provider.SendRequest) (*provider.SendResult, error) {
	s.mu.Lock()
	s.sent = append(s.sent, req.To)
	s.n++
	id := s.n
	s.mu.Unlock()

	if s.onSend != nil {
		s.onSend(req.To)
	}
	if s.permanent[req.To] {
		return nil, &provider.PermanentError{Reason: "number blocked"}
	}
	s.mu.Lock()
	remaining := s.transient[req.To]
	if remaining > 0 {
		s.transient[req.To] = remaining - 1
	}
	s.mu.Unlock()
	if remaining > 0 {
		return nil, errors.New("provider timeout")
	}
	return &provider.SendResult{ProviderMessageID: "wamid-" + string(rune('0'+id))}, nil
}

func (s *fakeSender) sentOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

const (
	phoneAlice = "5511987654321"
	phoneBruno = "5521998765432"
	phoneCarla = "5531988887777"
)

func newFakeStore() *fakeStore {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	return &fakeStore{
		campaign: &model.Campaign{ID: 9, CompanyID: 1, Status: model.CampaignActive},
		templates: []model.CampaignTemplate{
			{ID: 1, CampaignID: 9, Body: "Oi {first_name}!"},
		},
		contacts: []*model.CampaignContact{
			{ID: 1, CampaignID: 9, CustomerID: 1, Status: model.ContactPending, CreatedAt: base},
			{ID: 2, CampaignID: 9, CustomerID: 2, Status: model.ContactPending, CreatedAt: base.Add(time.Second)},
			{ID: 3, CampaignID: 9, CustomerID: 3, Status: model.ContactPending, CreatedAt: base.Add(2 * time.Second)},
		},
		customers: map[int]*model.Customer{
			1: {ID: 1, Name: "Alice Souza", Phone: phoneAlice},
			2: {ID: 2, Name: "Bruno Lima", Phone: phoneBruno},
			3: {ID: 3, Name: "Carla Mendes", Phone: phoneCarla},
		},
	}
}

func (f *fakeStore) GetCustomerByID(ctx context.Context, id int) (*model.Customer, error) {
	return f.customers[id], nil
}

type customerStoreFunc func(ctx context.Context, id int) (*model.Customer, error)

func (fn customerStoreFunc) GetByID(ctx context.Context, id int) (*model.Customer, error) {
	return fn(ctx, id)
}

type testDispatcher struct {
	*Dispatcher
	store   *fakeStore
	sender  *fakeSender
	emitter *events.MemoryEmitter
	sleeps  *[]time.Duration
}

func newTestDispatcher(store *fakeStore, sender *fakeSender, cfg Config) *testDispatcher {
	emitter := events.NewMemoryEmitter()
	d := New(store, store, customerStoreFunc(store.GetCustomerByID), sender, emitter, cfg, zerolog.Nop())

	sleeps := &[]time.Duration{}
	d.sleep = func(ctx context.Context, dur time.Duration) bool {
		*sleeps = append(*sleeps, dur)
		return ctx.Err() == nil
	}
	d.seed = func(int) int64 { return 1 }
	d.newIdempotencyKey = func() string { return "key" }

	return &testDispatcher{Dispatcher: d, store: store, sender: sender, emitter: emitter, sleeps: sleeps}
}

func testConfig() Config {
	return Config{
		PollInterval:    10 * time.Second,
		MinSendDelay:    15 * time.Second,
		MaxSendDelay:    45 * time.Second,
		MaxSendAttempts: 3,
		StaleClaimAfter: 5 * time.Minute,
	}
}

func TestStreamSendsInCreationOrderWithPacedDelays(t *testing.T) {
	store := newFakeStore()
	sender := &fakeSender{}
	d := newTestDispatcher(store, sender, testConfig())

	d.runStream(context.Background(), 9)

	assert.Equal(t, []string{phoneAlice, phoneBruno, phoneCarla}, sender.sentOrder())
	for _, c := range store.contacts {
		assert.Equal(t, model.ContactSent, c.Status, "contact %d", c.ID)
		assert.Equal(t, 1, c.AttemptCount, "contact %d", c.ID)
		assert.NotEmpty(t, c.ProviderMessageID, "contact %d", c.ID)
	}
	assert.Equal(t, model.CampaignCompleted, store.campaign.Status)

	// One paced delay between consecutive sends, each within the configured
	// window; the last send is not followed by a delay.
	require.Len(t, *d.sleeps, 2)
	for _, dur := range *d.sleeps {
		assert.GreaterOrEqual(t, dur, 15*time.Second)
		assert.LessOrEqual(t, dur, 45*time.Second)
	}

	var sentEvents int
	for _, e := range d.emitter.Events() {
		if e.Type == events.ContactSent {
			sentEvents++
		}
	}
	assert.Equal(t, 3, sentEvents)
}

func TestTransientFailureRetriesAtBackOfPass(t *testing.T) {
	store := newFakeStore()
	sender := &fakeSender{transient: map[string]int{phoneBruno: 1}}
	d := newTestDispatcher(store, sender, testConfig())

	d.runStream(context.Background(), 9)

	// The failing contact is retried after the rest of the pass, not in place.
	assert.Equal(t, []string{phoneAlice, phoneBruno, phoneCarla, phoneBruno}, sender.sentOrder())

	bruno := store.find(2)
	assert.Equal(t, model.ContactSent, bruno.Status)
	assert.Equal(t, 2, bruno.AttemptCount)
	assert.Empty(t, bruno.LastError)
	assert.Equal(t, model.CampaignCompleted, store.campaign.Status)

	var failed []events.Event
	for _, e := range d.emitter.Events() {
		if e.Type == events.ContactFailed {
			failed = append(failed, e)
		}
	}
	require.Len(t, failed, 1)
	assert.False(t, failed[0].Terminal)
	assert.Equal(t, 2, failed[0].CampaignContactID)
}

func TestRetryCeilingMakesFailureTerminal(t *testing.T) {
	store := newFakeStore()
	sender := &fakeSender{transient: map[string]int{phoneBruno: 10}}
	cfg := testConfig()
	cfg.MaxSendAttempts = 2
	d := newTestDispatcher(store, sender, cfg)

	d.runStream(context.Background(), 9)

	assert.Equal(t, []string{phoneAlice, phoneBruno, phoneCarla, phoneBruno}, sender.sentOrder())

	bruno := store.find(2)
	assert.Equal(t, model.ContactFailed, bruno.Status)
	assert.Equal(t, 2, bruno.AttemptCount)
	assert.NotEmpty(t, bruno.LastError)

	// Exhausted rows no longer block completion.
	assert.Equal(t, model.CampaignCompleted, store.campaign.Status)

	var failed []events.Event
	for _, e := range d.emitter.Events() {
		if e.Type == events.ContactFailed {
			failed = append(failed, e)
		}
	}
	require.Len(t, failed, 2)
	assert.False(t, failed[0].Terminal)
	assert.True(t, failed[1].Terminal)
}

func TestPermanentRejectionSkipsRetries(t *testing.T) {
	store := newFakeStore()
	sender := &fakeSender{permanent: map[string]bool{phoneBruno: true}}
	d := newTestDispatcher(store, sender, testConfig())

	d.runStream(context.Background(), 9)

	assert.Equal(t, []string{phoneAlice, phoneBruno, phoneCarla}, sender.sentOrder())

	bruno := store.find(2)
	assert.Equal(t, model.ContactFailed, bruno.Status)
	assert.Equal(t, 3, bruno.AttemptCount, "budget exhausted in one attempt")

	var failed []events.Event
	for _, e := range d.emitter.Events() {
		if e.Type == events.ContactFailed {
			failed = append(failed, e)
		}
	}
	require.Len(t, failed, 1)
	assert.True(t, failed[0].Terminal)
}

func TestPauseStopsStreamAndResumePicksUpWhereItLeft(t *testing.T) {
	store := newFakeStore()
	sender := &fakeSender{}
	sender.onSend = func(string) {
		if len(sender.sentOrder()) == 1 {
			store.setCampaignStatus(model.CampaignPaused)
		}
	}
	d := newTestDispatcher(store, sender, testConfig())

	d.runStream(context.Background(), 9)

	// The in-flight send finished, then the stream stopped at the status check.
	assert.Equal(t, []string{phoneAlice}, sender.sentOrder())
	assert.Equal(t, model.ContactSent, store.find(1).Status)
	assert.Equal(t, model.ContactPending, store.find(2).Status)
	assert.Equal(t, model.ContactPending, store.find(3).Status)
	assert.Equal(t, model.CampaignPaused, store.campaign.Status)

	sender.onSend = nil
	store.setCampaignStatus(model.CampaignActive)
	d.runStream(context.Background(), 9)

	// Nothing re-sent, nothing skipped.
	assert.Equal(t, []string{phoneAlice, phoneBruno, phoneCarla}, sender.sentOrder())
	assert.Equal(t, model.CampaignCompleted, store.campaign.Status)
}

func TestUnrenderableTemplateFailsWithoutProviderCall(t *testing.T) {
	store := newFakeStore()
	store.templates = []model.CampaignTemplate{
		{ID: 1, CampaignID: 9, Body: "Use o cupom {cupom}"},
	}
	sender := &fakeSender{}
	d := newTestDispatcher(store, sender, testConfig())

	d.runStream(context.Background(), 9)

	assert.Empty(t, sender.sentOrder(), "provider must not be called")
	assert.Empty(t, *d.sleeps, "no pacing delay without a provider call")
	for _, c := range store.contacts {
		assert.Equal(t, model.ContactFailed, c.Status, "contact %d", c.ID)
		assert.Equal(t, 3, c.AttemptCount, "contact %d", c.ID)
	}
	assert.Equal(t, model.CampaignCompleted, store.campaign.Status)
}

func TestNoPacingDelayAfterFinalSend(t *testing.T) {
	store := newFakeStore()
	store.contacts = store.contacts[:1]
	sender := &fakeSender{}
	d := newTestDispatcher(store, sender, testConfig())

	d.runStream(context.Background(), 9)

	assert.Equal(t, []string{phoneAlice}, sender.sentOrder())
	assert.Empty(t, *d.sleeps, "completion must not wait out a send delay")
	assert.Equal(t, model.CampaignCompleted, store.campaign.Status)
}

func TestStreamStopsOnCanceledContext(t *testing.T) {
	store := newFakeStore()
	sender := &fakeSender{}
	d := newTestDispatcher(store, sender, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.runStream(ctx, 9)

	assert.Empty(t, sender.sentOrder())
	for _, c := range store.contacts {
		assert.Equal(t, model.ContactPending, c.Status)
	}
}

func TestStreamStopsPastEndDate(t *testing.T) {
	store := newFakeStore()
	past := time.Now().Add(-time.Hour)
	store.campaign.EndDate = &past
	sender := &fakeSender{}
	d := newTestDispatcher(store, sender, testConfig())

	d.runStream(context.Background(), 9)

	assert.Empty(t, sender.sentOrder())
	assert.Equal(t, model.CampaignActive, store.campaign.Status, "end date stop is not completion")
}

func TestSendDelayStaysWithinWindow(t *testing.T) {
	d := newTestDispatcher(newFakeStore(), &fakeSender{}, testConfig())
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 1000; i++ {
		delay := d.sendDelay(rng)
		require.GreaterOrEqual(t, delay, 15*time.Second)
		require.LessOrEqual(t, delay, 45*time.Second)
	}
}

func TestSendDelayDegenerateWindow(t *testing.T) {
	cfg := testConfig()
	cfg.MinSendDelay = 20 * time.Second
	cfg.MaxSendDelay = 20 * time.Second
	d := newTestDispatcher(newFakeStore(), &fakeSender{}, cfg)
	rng := rand.New(rand.NewSource(42))

	assert.Equal(t, 20*time.Second, d.sendDelay(rng))
}

func TestStartStreamIsDeduplicated(t *testing.T) {
	store := newFakeStore()
	// Keep the stream parked so the second start attempt sees it registered.
	store.setCampaignStatus(model.CampaignPaused)
	d := newTestDispatcher(store, &fakeSender{}, testConfig())

	d.streams[9] = struct{}{}
	d.startStream(context.Background(), store.campaign)

	d.mu.Lock()
	_, running := d.streams[9]
	d.mu.Unlock()
	assert.True(t, running)
	assert.Empty(t, d.sender.sentOrder())
}
