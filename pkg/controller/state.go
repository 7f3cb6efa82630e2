package controller

import (
	"context"

	"github.com/unifi-declarative/unifid/pkg/config"
	"github.com/unifi-declarative/unifid/pkg/util"
)

// FetchLive pulls the controller's current segments and firewall rules
// and normalizes them into the same shape as desired state, so the diff
// engine compares like with like. Segments are fetched first: rule
// normalization needs the network map.
func FetchLive(ctx context.Context, c Client) (*config.Config, error) {
	segments, err := c.FetchSegments(ctx)
	if err != nil {
		return nil, err
	}

	rules, err := c.FetchFirewallRules(ctx)
	if err != nil {
		return nil, err
	}

	live := &config.Config{Segments: segments, Rules: rules}
	util.Debugf("live state: %d segments, %d firewall rules", len(segments), len(rules))
	return live, nil
}
