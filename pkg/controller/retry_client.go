package controller

import (
	"context"
	"fmt"

	"github.com/unifi-declarative/unifid/pkg/config"
)

// retryClient decorates a Client with the retry policy so callers stay
// free of retry mechanics.
type retryClient struct {
	inner  Client
	policy RetryPolicy
}

// WithRetry wraps a client so every remote call retries transient
// failures per the policy.
func WithRetry(c Client, policy RetryPolicy) Client {
	return &retryClient{inner: c, policy: policy}
}

func (r *retryClient) FetchSegments(ctx context.Context) ([]*config.Segment, error) {
	var segs []*config.Segment
	err := r.policy.Do(ctx, "fetch segments", func() error {
		var err error
		segs, err = r.inner.FetchSegments(ctx)
		return err
	})
	return segs, err
}

func (r *retryClient) FetchFirewallRules(ctx context.Context) ([]*config.FirewallRule, error) {
	var rules []*config.FirewallRule
	err := r.policy.Do(ctx, "fetch firewall rules", func() error {
		var err error
		rules, err = r.inner.FetchFirewallRules(ctx)
		return err
	})
	return rules, err
}

func (r *retryClient) CreateSegment(ctx context.Context, seg *config.Segment) error {
	return r.policy.Do(ctx, "create "+seg.Key(), func() error {
		return r.inner.CreateSegment(ctx, seg)
	})
}

func (r *retryClient) UpdateSegment(ctx context.Context, seg *config.Segment) error {
	return r.policy.Do(ctx, "update "+seg.Key(), func() error {
		return r.inner.UpdateSegment(ctx, seg)
	})
}

func (r *retryClient) DeleteSegment(ctx context.Context, vlan int) error {
	return r.policy.Do(ctx, fmt.Sprintf("delete segment/%d", vlan), func() error {
		return r.inner.DeleteSegment(ctx, vlan)
	})
}

func (r *retryClient) CreateFirewallRule(ctx context.Context, rule *config.FirewallRule) error {
	return r.policy.Do(ctx, "create "+rule.Key(), func() error {
		return r.inner.CreateFirewallRule(ctx, rule)
	})
}

func (r *retryClient) UpdateFirewallRule(ctx context.Context, prevPriority int, rule *config.FirewallRule) error {
	return r.policy.Do(ctx, "update "+rule.Key(), func() error {
		return r.inner.UpdateFirewallRule(ctx, prevPriority, rule)
	})
}

func (r *retryClient) DeleteFirewallRule(ctx context.Context, chain string, priority int) error {
	return r.policy.Do(ctx, fmt.Sprintf("delete rule/%s/%d", chain, priority), func() error {
		return r.inner.DeleteFirewallRule(ctx, chain, priority)
	})
}

func (r *retryClient) Snapshot(ctx context.Context) (*SnapshotHandle, error) {
	var handle *SnapshotHandle
	err := r.policy.Do(ctx, "snapshot", func() error {
		var err error
		handle, err = r.inner.Snapshot(ctx)
		return err
	})
	return handle, err
}
