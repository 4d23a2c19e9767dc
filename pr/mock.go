package pr

import (
	"context"
	"slices"
	"sync"
)

// MockProvider is a Provider for tests. The Func fields, when set, decide
// the result; successful merges and comments are recorded either way.
type MockProvider struct {
	GetPRFunc      func(ctx context.Context, id int) (*PullRequest, error)
	MergePRFunc    func(ctx context.Context, id int, opts MergeOptions) error
	AddCommentFunc func(ctx context.Context, id int, body string) error

	mu       sync.Mutex
	merged   []int
	comments map[int][]string
}

func (m *MockProvider) GetPR(ctx context.Context, id int) (*PullRequest, error) {
	if m.GetPRFunc != nil {
		return m.GetPRFunc(ctx, id)
	}
	return &PullRequest{ID: id, State: StateOpen}, nil
}

func (m *MockProvider) MergePR(ctx context.Context, id int, opts MergeOptions) error {
	if m.MergePRFunc != nil {
		if err := m.MergePRFunc(ctx, id, opts); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merged = append(m.merged, id)
	return nil
}

func (m *MockProvider) AddComment(ctx context.Context, id int, body string) error {
	if m.AddCommentFunc != nil {
		if err := m.AddCommentFunc(ctx, id, body); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.comments == nil {
		m.comments = map[int][]string{}
	}
	m.comments[id] = append(m.comments[id], body)
	return nil
}

// Merged returns the PR numbers merged so far.
func (m *MockProvider) Merged() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.merged)
}

// Comments returns the comments added to a PR.
func (m *MockProvider) Comments(id int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.comments[id])
}
