// Package controller talks to the gateway controller's REST API: session
// authentication, live-state retrieval, and the mutation calls the
// applier executes. All blocking calls take a context.
package controller

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/unifi-declarative/unifid/pkg/config"
	"github.com/unifi-declarative/unifid/pkg/util"
)

// Client is the remote controller interface. Each call maps to a single
// REST request and returns a typed error (auth, rate-limited, not-found,
// conflict) on failure.
type Client interface {
	FetchSegments(ctx context.Context) ([]*config.Segment, error)
	FetchFirewallRules(ctx context.Context) ([]*config.FirewallRule, error)

	CreateSegment(ctx context.Context, seg *config.Segment) error
	UpdateSegment(ctx context.Context, seg *config.Segment) error
	DeleteSegment(ctx context.Context, vlan int) error

	CreateFirewallRule(ctx context.Context, rule *config.FirewallRule) error
	// UpdateFirewallRule addresses the live rule at prevPriority in the
	// rule's chain. prevPriority equals rule.Priority except when the
	// update is a reorder.
	UpdateFirewallRule(ctx context.Context, prevPriority int, rule *config.FirewallRule) error
	DeleteFirewallRule(ctx context.Context, chain string, priority int) error

	Snapshot(ctx context.Context) (*SnapshotHandle, error)
}

// HTTPClient implements Client against a UniFi-style controller.
//
// The controller keys objects by its own generated _id; the engine keys
// them by VLAN tag and chain+priority. The client maintains the mapping
// from the last fetch so mutations address the right controller object
// without the caller ever seeing an _id.
type HTTPClient struct {
	baseURL  string
	site     string
	username string
	password string
	http     *http.Client

	mu          sync.Mutex
	loggedIn    bool
	netIDByVLAN map[int]string
	tagByNetID  map[string]int
	ruleIDByKey map[string]string
}

// Options configures an HTTPClient.
type Options struct {
	BaseURL       string
	Site          string
	Username      string
	Password      string
	SkipTLSVerify bool // self-signed controller certificates
	Timeout       time.Duration
}

// NewHTTPClient creates a controller client. No network call is made
// until the first request needs a session.
func NewHTTPClient(opts Options) *HTTPClient {
	if opts.Site == "" {
		opts.Site = "default"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	transport := http.DefaultTransport
	if opts.SkipTLSVerify {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	jar := newCookieJar()
	return &HTTPClient{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		site:     opts.Site,
		username: opts.Username,
		password: opts.Password,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			Jar:       jar,
		},
		netIDByVLAN: make(map[int]string),
		tagByNetID:  make(map[string]int),
		ruleIDByKey: make(map[string]string),
	}
}

func (c *HTTPClient) sitePath(suffix string) string {
	return fmt.Sprintf("/api/s/%s/%s", c.site, suffix)
}

// login establishes a session cookie. The controller invalidates
// sessions aggressively, so callers retry once on 401 before treating
// it as an auth failure.
func (c *HTTPClient) login(ctx context.Context) error {
	payload, _ := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/login", bytes.NewReader(payload))
	if err != nil {
		return &APIError{Op: "login", Message: err.Error(), Err: ErrUnavailable}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Op: "login", Message: err.Error(), Err: ErrUnavailable}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		c.loggedIn = true
		util.WithController(c.baseURL).Debug("session established")
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &APIError{Op: "login", StatusCode: resp.StatusCode, Message: "bad credentials", Err: ErrAuthFailed}
	default:
		return c.statusError("login", resp.StatusCode, "")
	}
}

func (c *HTTPClient) ensureLogin(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loggedIn {
		return nil
	}
	return c.login(ctx)
}

// do executes a request against a site-scoped path, re-logging-in once
// if the session has expired. out, when non-nil, receives the decoded
// "data" array of the controller envelope.
func (c *HTTPClient) do(ctx context.Context, op, method, path string, body interface{}, out interface{}) error {
	if err := c.ensureLogin(ctx); err != nil {
		return err
	}

	status, err := c.doOnce(ctx, op, method, path, body, out)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		// Session expired: re-login once, then surface auth failure.
		c.mu.Lock()
		c.loggedIn = false
		c.mu.Unlock()
		if err := c.ensureLogin(ctx); err != nil {
			return err
		}
		status, err = c.doOnce(ctx, op, method, path, body, out)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return &APIError{Op: op, StatusCode: status, Message: "session rejected after re-login", Err: ErrAuthFailed}
		}
	}
	if status != http.StatusOK {
		return c.statusError(op, status, path)
	}
	return nil
}

// doOnce performs a single HTTP round-trip. A non-nil error means the
// request never completed (network failure); HTTP-level failures are
// returned through the status code.
func (c *HTTPClient) doOnce(ctx context.Context, op, method, path string, body interface{}, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, &APIError{Op: op, Message: "encoding request: " + err.Error(), Err: ErrConflict}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, &APIError{Op: op, Message: err.Error(), Err: ErrUnavailable}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, &APIError{Op: op, Message: err.Error(), Err: ErrUnavailable}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	if out != nil {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return 0, &APIError{Op: op, Message: "decoding response: " + err.Error(), Err: ErrUnavailable}
		}
		if len(envelope.Data) > 0 {
			if err := json.Unmarshal(envelope.Data, out); err != nil {
				return 0, &APIError{Op: op, Message: "decoding data: " + err.Error(), Err: ErrUnavailable}
			}
		}
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	return http.StatusOK, nil
}

func (c *HTTPClient) statusError(op string, status int, path string) error {
	msg := fmt.Sprintf("request to %s failed", path)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &APIError{Op: op, StatusCode: status, Message: msg, Err: ErrAuthFailed}
	case status == http.StatusTooManyRequests:
		return &APIError{Op: op, StatusCode: status, Message: msg, Err: ErrRateLimited}
	case status == http.StatusNotFound:
		return &APIError{Op: op, StatusCode: status, Message: msg, Err: ErrNotFound}
	case status == http.StatusConflict || status == http.StatusBadRequest:
		return &APIError{Op: op, StatusCode: status, Message: msg, Err: ErrConflict}
	case status >= 500:
		return &APIError{Op: op, StatusCode: status, Message: msg, Err: ErrUnavailable}
	default:
		return &APIError{Op: op, StatusCode: status, Message: msg, Err: ErrConflict}
	}
}

// FetchSegments retrieves all networks from the controller and
// normalizes them into segments. It also refreshes the VLAN-to-_id map
// used by mutations and by firewall rule normalization.
func (c *HTTPClient) FetchSegments(ctx context.Context) ([]*config.Segment, error) {
	var confs []networkConf
	if err := c.do(ctx, "fetch segments", http.MethodGet, c.sitePath("rest/networkconf"), nil, &confs); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.netIDByVLAN = make(map[int]string)
	c.tagByNetID = make(map[string]int)
	c.mu.Unlock()

	var segments []*config.Segment
	for i := range confs {
		conf := &confs[i]
		seg, err := conf.toSegment()
		if err != nil {
			util.Warnf("skipping unparseable network %q: %v", conf.Name, err)
			continue
		}
		c.mu.Lock()
		c.netIDByVLAN[seg.VLAN] = conf.ID
		c.tagByNetID[conf.ID] = seg.VLAN
		c.mu.Unlock()
		segments = append(segments, seg)
	}
	return segments, nil
}

// FetchFirewallRules retrieves all firewall rules. Rules referencing
// networks by controller _id are normalized to VLAN tag selectors using
// the map from the most recent FetchSegments call.
func (c *HTTPClient) FetchFirewallRules(ctx context.Context) ([]*config.FirewallRule, error) {
	var wire []firewallRuleConf
	if err := c.do(ctx, "fetch firewall rules", http.MethodGet, c.sitePath("rest/firewallrule"), nil, &wire); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.ruleIDByKey = make(map[string]string)
	tagByNetID := c.tagByNetID
	c.mu.Unlock()

	var rules []*config.FirewallRule
	for i := range wire {
		conf := &wire[i]
		rule := conf.toRule(tagByNetID)
		c.mu.Lock()
		c.ruleIDByKey[rule.Key()] = conf.ID
		c.mu.Unlock()
		rules = append(rules, rule)
	}
	return rules, nil
}

// CreateSegment creates a network on the controller. The _id the
// controller assigns is recorded so that rules referencing this segment
// can be created later in the same run.
func (c *HTTPClient) CreateSegment(ctx context.Context, seg *config.Segment) error {
	conf := fromSegment(seg)
	var created []networkConf
	if err := c.do(ctx, "create "+seg.Key(), http.MethodPost, c.sitePath("rest/networkconf"), conf, &created); err != nil {
		return err
	}
	if len(created) == 1 && created[0].ID != "" {
		c.mu.Lock()
		c.netIDByVLAN[seg.VLAN] = created[0].ID
		c.tagByNetID[created[0].ID] = seg.VLAN
		c.mu.Unlock()
	}
	return nil
}

// UpdateSegment updates a network, addressed by its VLAN tag.
func (c *HTTPClient) UpdateSegment(ctx context.Context, seg *config.Segment) error {
	id, err := c.netID(seg.VLAN, "update "+seg.Key())
	if err != nil {
		return err
	}
	conf := fromSegment(seg)
	conf.ID = id
	return c.do(ctx, "update "+seg.Key(), http.MethodPut, c.sitePath("rest/networkconf/"+id), conf, nil)
}

// DeleteSegment deletes a network, addressed by its VLAN tag.
func (c *HTTPClient) DeleteSegment(ctx context.Context, vlan int) error {
	op := fmt.Sprintf("delete segment/%d", vlan)
	id, err := c.netID(vlan, op)
	if err != nil {
		return err
	}
	return c.do(ctx, op, http.MethodDelete, c.sitePath("rest/networkconf/"+id), nil, nil)
}

// CreateFirewallRule creates a rule on the controller.
func (c *HTTPClient) CreateFirewallRule(ctx context.Context, rule *config.FirewallRule) error {
	conf, err := c.fromRule(rule)
	if err != nil {
		return err
	}
	return c.do(ctx, "create "+rule.Key(), http.MethodPost, c.sitePath("rest/firewallrule"), conf, nil)
}

// UpdateFirewallRule updates a rule. The live object is addressed by
// chain and prevPriority; the payload may carry a new priority.
func (c *HTTPClient) UpdateFirewallRule(ctx context.Context, prevPriority int, rule *config.FirewallRule) error {
	op := "update " + rule.Key()
	id, err := c.ruleID(rule.Chain, prevPriority, op)
	if err != nil {
		return err
	}
	conf, err := c.fromRule(rule)
	if err != nil {
		return err
	}
	conf.ID = id
	return c.do(ctx, op, http.MethodPut, c.sitePath("rest/firewallrule/"+id), conf, nil)
}

// DeleteFirewallRule deletes a rule, addressed by chain and priority.
func (c *HTTPClient) DeleteFirewallRule(ctx context.Context, chain string, priority int) error {
	op := fmt.Sprintf("delete rule/%s/%d", chain, priority)
	id, err := c.ruleID(chain, priority, op)
	if err != nil {
		return err
	}
	return c.do(ctx, op, http.MethodDelete, c.sitePath("rest/firewallrule/"+id), nil, nil)
}

func (c *HTTPClient) netID(vlan int, op string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.netIDByVLAN[vlan]
	if !ok {
		return "", &APIError{Op: op, Message: fmt.Sprintf("no controller object for VLAN %d; re-fetch live state", vlan), Err: ErrNotFound}
	}
	return id, nil
}

func (c *HTTPClient) ruleID(chain string, priority int, op string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := fmt.Sprintf("rule/%s/%d", chain, priority)
	id, ok := c.ruleIDByKey[key]
	if !ok {
		return "", &APIError{Op: op, Message: fmt.Sprintf("no controller object for %s; re-fetch live state", key), Err: ErrNotFound}
	}
	return id, nil
}
