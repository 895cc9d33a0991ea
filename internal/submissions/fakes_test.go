package submissions

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/ngo-platform/backend/internal/apperr"
	"github.com/ngo-platform/backend/internal/esign"
	"github.com/ngo-platform/backend/internal/models"
)

type fakeAnalyzer struct {
	mu       sync.Mutex
	calls    int
	docs     [][]string
	analysis models.Analysis
	err      error
	block    bool
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, docs []string) (models.Analysis, error) {
	f.mu.Lock()
	f.calls++
	f.docs = append(f.docs, docs)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return models.Analysis{}, apperr.AnalysisUnavailable(ctx.Err())
	}
	return f.analysis, f.err
}

func (f *fakeAnalyzer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeComposer struct {
	mu         sync.Mutex
	calls      int
	categories []models.TemplateCategory
	inputs     []map[string]string
	out        string
	err        error
	// observed is called on every Compose, before returning.
	observed func()
}

func (f *fakeComposer) Compose(ctx context.Context, category models.TemplateCategory, data map[string]string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.categories = append(f.categories, category)
	f.inputs = append(f.inputs, data)
	f.mu.Unlock()
	if f.observed != nil {
		f.observed()
	}
	if err := ctx.Err(); err != nil {
		return "", apperr.CorrespondenceUnavailable(err)
	}
	return f.out, f.err
}

func (f *fakeComposer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSender struct {
	mu    sync.Mutex
	calls int
	reqs  []esign.AgreementRequest
	id    string
	err   error
}

func (f *fakeSender) SendAgreement(_ context.Context, req esign.AgreementRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.reqs = append(f.reqs, req)
	return f.id, f.err
}

func (f *fakeSender) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDocuments struct {
	mu      sync.Mutex
	calls   int
	uploads map[string]string
	err     error
}

func (f *fakeDocuments) UploadDocument(_ context.Context, ngoID, submissionID, filename, _ string, body io.Reader, _ int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	raw, _ := io.ReadAll(body)
	if f.uploads == nil {
		f.uploads = map[string]string{}
	}
	f.uploads[filename] = string(raw)
	return "https://docs.example/" + ngoID + "/" + submissionID + "/" + filename, nil
}

type fakeQueue struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (f *fakeQueue) EnqueueDelivery(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, id)
	return nil
}

type memRecorder struct {
	mu         sync.Mutex
	subs       []models.Submission
	inserts    int
	lists      int
	err        error
	deliveries map[string]string
}

func newMemRecorder() *memRecorder {
	return &memRecorder{deliveries: map[string]string{}}
}

func (m *memRecorder) Insert(ctx context.Context, sub *models.Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if m.err != nil {
		return m.err
	}
	m.subs = append(m.subs, *sub)
	return nil
}

func (m *memRecorder) Get(_ context.Context, id string) (*models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.subs {
		if m.subs[i].ID == id {
			sub := m.subs[i]
			return &sub, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRecorder) List(_ context.Context, orgID string, kind models.SubmissionKind, limit int) ([]models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	if m.err != nil {
		return nil, m.err
	}
	var out []models.Submission
	for _, s := range m.subs {
		if s.OrganizationID == orgID && s.Kind == kind {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRecorder) UpdateDelivery(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.subs {
		if m.subs[i].ID == id {
			m.subs[i].DeliveryStatus = status
			m.deliveries[id] = status
			return nil
		}
	}
	return ErrNotFound
}

func (m *memRecorder) Inserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inserts
}

// memIdempotency is an in-process Idempotency for handler tests.
type memIdempotency struct {
	mu      sync.Mutex
	entries map[string]*Replay
	begins  int
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{entries: map[string]*Replay{}}
}

func (m *memIdempotency) Begin(_ context.Context, scope, key string) (*Replay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.begins++
	k := idempotencyKey(scope, key)
	rep, ok := m.entries[k]
	if !ok {
		m.entries[k] = &Replay{State: statePending}
		return nil, nil
	}
	if rep.State != stateDone {
		return nil, apperr.Conflict("request with this Idempotency-Key is in progress")
	}
	cp := *rep
	return &cp, nil
}

func (m *memIdempotency) Complete(_ context.Context, scope, key string, status int, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[idempotencyKey(scope, key)] = &Replay{State: stateDone, Status: status, Body: body}
	return nil
}

func (m *memIdempotency) Release(_ context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, idempotencyKey(scope, key))
	return nil
}

// stepClock returns strictly increasing timestamps.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

var errBoom = errors.New("boom")
