package service_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/glonboarding/hr-lambda-telnyx/internal/client"
	"github.com/glonboarding/hr-lambda-telnyx/internal/model"
	"github.com/glonboarding/hr-lambda-telnyx/internal/repo"
)

type fakeMessages struct {
	mu      sync.Mutex
	order   []string
	records map[string]*model.MessageRecord
	nextID  int
	updates int

	queryErr  error
	insertErr error
}

var _ repo.MessageRepository = (*fakeMessages)(nil)

func newFakeMessages(seed ...model.MessageRecord) *fakeMessages {
	f := &fakeMessages{records: make(map[string]*model.MessageRecord)}
	for _, r := range seed {
		r := r
		f.order = append(f.order, r.ID)
		f.records[r.ID] = &r
	}
	return f
}

func (f *fakeMessages) QueuedOutbound(_ context.Context, orgID string) ([]model.MessageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []model.MessageRecord
	for _, id := range f.order {
		r := f.records[id]
		if r.OrgID == orgID && r.Direction == model.Outbound && r.Status == model.Queued {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeMessages) Insert(_ context.Context, rec *model.MessageRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.insertErr != nil {
		return "", f.insertErr
	}
	f.nextID++
	rec.ID = fmt.Sprintf("new-%d", f.nextID)
	cp := *rec
	f.order = append(f.order, rec.ID)
	f.records[rec.ID] = &cp
	return rec.ID, nil
}

func (f *fakeMessages) UpdateStatus(_ context.Context, id string, outcome model.Outcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.updates++
	r, ok := f.records[id]
	if !ok || r.Status != model.Queued {
		return nil
	}
	r.Status = outcome.Status
	r.GatewayMessageID = outcome.GatewayMessageID
	r.Error = outcome.Error
	return nil
}

func (f *fakeMessages) OrgsWithQueued(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	seen := map[string]bool{}
	var orgs []string
	for _, id := range f.order {
		r := f.records[id]
		if r.Direction == model.Outbound && r.Status == model.Queued && !seen[r.OrgID] {
			seen[r.OrgID] = true
			orgs = append(orgs, r.OrgID)
		}
	}
	return orgs, nil
}

func (f *fakeMessages) ListSent(_ context.Context, orgID string, _, _ int) ([]model.MessageRecord, error) {
	return nil, nil
}

func (f *fakeMessages) get(id string) model.MessageRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.records[id]
}

func (f *fakeMessages) byDirection(d model.Direction) []model.MessageRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []model.MessageRecord
	for _, id := range f.order {
		if r := f.records[id]; r.Direction == d {
			out = append(out, *r)
		}
	}
	return out
}

type fakeLeads struct {
	mu      sync.Mutex
	byPhone map[string]*model.Lead
	findErr error

	optInWrites int
}

var _ repo.LeadRepository = (*fakeLeads)(nil)

func newFakeLeads(leads ...model.Lead) *fakeLeads {
	f := &fakeLeads{byPhone: make(map[string]*model.Lead)}
	for _, l := range leads {
		l := l
		f.byPhone[l.Phone] = &l
	}
	return f
}

func (f *fakeLeads) FindByPhone(_ context.Context, phone string) (*model.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.findErr != nil {
		return nil, f.findErr
	}
	l, ok := f.byPhone[phone]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (f *fakeLeads) find(id string) *model.Lead {
	for _, l := range f.byPhone {
		if l.ID == id {
			return l
		}
	}
	return nil
}

func (f *fakeLeads) UpdateOptIn(_ context.Context, id string, optIn model.OptIn) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.optInWrites++
	if l := f.find(id); l != nil {
		l.OptIn = optIn
	}
	return nil
}

func (f *fakeLeads) OptInIfUndecided(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	l := f.find(id)
	if l == nil || l.OptIn.Decided() {
		return false, nil
	}
	f.optInWrites++
	l.OptIn = model.OptedIn
	return true, nil
}

func (f *fakeLeads) UpdateMessageStatusIfQueued(_ context.Context, id string, status model.LeadMessageStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	l := f.find(id)
	if l == nil || l.MessageStatus != model.LeadQueued {
		return false, nil
	}
	l.MessageStatus = status
	return true, nil
}

func (f *fakeLeads) lead(phone string) model.Lead {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.byPhone[phone]
}

type fakePrompts map[string]string

func (f fakePrompts) ReplyPrompt(_ context.Context, orgID string) (string, bool, error) {
	p, ok := f[orgID]
	return p, ok, nil
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Send(ctx context.Context, req client.SendRequest) (*client.Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*client.Response)
	return resp, args.Error(1)
}

func okResponse(id string) *client.Response {
	return &client.Response{OK: true, StatusCode: 200, Body: []byte(`{"data":{"id":"` + id + `"}}`)}
}

func toNumber(n string) any {
	return mock.MatchedBy(func(r client.SendRequest) bool {
		return len(r.To) == 1 && r.To[0] == n
	})
}

func ptr(s string) *string { return &s }
