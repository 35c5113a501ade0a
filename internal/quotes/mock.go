package quotes

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockProvider is a deterministic provider for tests: settable health,
// simulated latency, and a failure script that makes the next N fetches
// fail before succeeding.
type MockProvider struct {
	mu        sync.Mutex
	name      string
	quotes    map[string]Quote // category -> quote
	healthOk  bool
	latency   time.Duration
	failNext  int
	failWith  error
	fetchLog  []string
	callCount int
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		name: name,
		quotes: map[string]Quote{
			"motivation": {Text: "Keep going.", Author: "Tester", Category: "motivation"},
			"wisdom":     {Text: "Measure twice, cut once.", Author: "Tester", Category: "wisdom"},
			"":           {Text: "Any quote will do.", Author: "Tester", Category: ""},
		},
		healthOk: true,
	}
}

func (m *MockProvider) Name() string { return m.name }

func (m *MockProvider) FetchQuote(ctx context.Context, category string) (*Quote, error) {
	m.mu.Lock()
	latency := m.latency
	m.callCount++
	m.fetchLog = append(m.fetchLog, category)
	fail := m.failNext > 0
	if fail {
		m.failNext--
	}
	failWith := m.failWith
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return nil, NewUnknownError(m.name, ctx.Err())
		case <-time.After(latency):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, NewUnknownError(m.name, err)
	}

	if fail {
		if failWith != nil {
			return nil, failWith
		}
		return nil, NewProviderError(m.name, "scripted failure", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[category]
	if !ok {
		q = m.quotes[""]
		q.Category = category
	}
	q.Source = m.name
	q.FetchedAt = time.Now()
	return &q, nil
}

func (m *MockProvider) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.healthOk {
		return fmt.Errorf("mock provider %s unhealthy", m.name)
	}
	return nil
}

func (m *MockProvider) Close() error { return nil }

// SetHealth controls HealthCheck outcomes.
func (m *MockProvider) SetHealth(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthOk = ok
}

// SetLatency simulates slow fetches.
func (m *MockProvider) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// FailNext scripts the next n fetches to fail with err (nil uses a
// generic provider error).
func (m *MockProvider) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
	m.failWith = err
}

// AddQuote installs a quote for a category.
func (m *MockProvider) AddQuote(q Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[q.Category] = q
}

// CallCount reports how many fetches were attempted.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}
