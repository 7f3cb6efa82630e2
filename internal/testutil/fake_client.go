// Package testutil provides shared test doubles.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unifi-declarative/unifid/pkg/config"
	"github.com/unifi-declarative/unifid/pkg/controller"
)

// FakeClient is an in-memory controller.Client. Every call is recorded
// in Calls using the operation's identity key, and failures can be
// scripted per key through FailOn.
type FakeClient struct {
	mu sync.Mutex

	Segments []*config.Segment
	Rules    []*config.FirewallRule

	Calls       []string
	FailOn      map[string]error
	SnapshotErr error
	Snapshots   int
}

// NewFakeClient returns an empty fake controller.
func NewFakeClient() *FakeClient {
	return &FakeClient{FailOn: make(map[string]error)}
}

// CallLog returns a copy of the recorded calls.
func (f *FakeClient) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Calls))
	copy(out, f.Calls)
	return out
}

func (f *FakeClient) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, call)
	if err, ok := f.FailOn[call]; ok {
		return err
	}
	return nil
}

func (f *FakeClient) FetchSegments(ctx context.Context) ([]*config.Segment, error) {
	if err := f.record("fetch segments"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*config.Segment(nil), f.Segments...), nil
}

func (f *FakeClient) FetchFirewallRules(ctx context.Context) ([]*config.FirewallRule, error) {
	if err := f.record("fetch rules"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*config.FirewallRule(nil), f.Rules...), nil
}

func (f *FakeClient) CreateSegment(ctx context.Context, seg *config.Segment) error {
	if err := f.record("create " + seg.Key()); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Segments = append(f.Segments, seg)
	return nil
}

func (f *FakeClient) UpdateSegment(ctx context.Context, seg *config.Segment) error {
	if err := f.record("update " + seg.Key()); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.Segments {
		if existing.VLAN == seg.VLAN {
			f.Segments[i] = seg
			return nil
		}
	}
	return controller.ErrNotFound
}

func (f *FakeClient) DeleteSegment(ctx context.Context, vlan int) error {
	if err := f.record(fmt.Sprintf("delete segment/%d", vlan)); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.Segments {
		if existing.VLAN == vlan {
			f.Segments = append(f.Segments[:i], f.Segments[i+1:]...)
			return nil
		}
	}
	return controller.ErrNotFound
}

func (f *FakeClient) CreateFirewallRule(ctx context.Context, rule *config.FirewallRule) error {
	if err := f.record("create " + rule.Key()); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Rules = append(f.Rules, rule)
	return nil
}

func (f *FakeClient) UpdateFirewallRule(ctx context.Context, prevPriority int, rule *config.FirewallRule) error {
	if err := f.record("update " + rule.Key()); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.Rules {
		if existing.Chain == rule.Chain && existing.Priority == prevPriority {
			f.Rules[i] = rule
			return nil
		}
	}
	return controller.ErrNotFound
}

func (f *FakeClient) DeleteFirewallRule(ctx context.Context, chain string, priority int) error {
	if err := f.record(fmt.Sprintf("delete rule/%s/%d", chain, priority)); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.Rules {
		if existing.Chain == chain && existing.Priority == priority {
			f.Rules = append(f.Rules[:i], f.Rules[i+1:]...)
			return nil
		}
	}
	return controller.ErrNotFound
}

func (f *FakeClient) Snapshot(ctx context.Context) (*controller.SnapshotHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SnapshotErr != nil {
		return nil, f.SnapshotErr
	}
	f.Snapshots++
	return &controller.SnapshotHandle{ID: uuid.NewString(), TakenAt: time.Now()}, nil
}
