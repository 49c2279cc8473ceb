package services

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/log/level"
	"github.com/go-resty/resty/v2"

	"github.com/keyturn/go-keyturn-server/global"
)

// DomainService holds the allowlist of alias namespaces. Seeded from the
// config file; optionally refreshed from a remote JSON document on a cron
// schedule. Reads vastly outnumber refreshes.
type DomainService struct {
	client *resty.Client

	mu      sync.RWMutex
	domains map[string]struct{}
}

// remote allowlist document shape
type allowlistDocument struct {
	Domains []string `json:"domains"`
}

func NewDomainService() *DomainService {
	client := resty.New().
		SetTimeout(time.Second * 10).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "go-keyturn-server/"+global.Conf.Version)

	ds := &DomainService{
		client:  client,
		domains: map[string]struct{}{},
	}
	ds.replace(global.Conf.Rotation.AllowedAliasDomains)
	return ds
}

// IsAllowed reports whether an alias may be created in the given namespace
func (ds *DomainService) IsAllowed(domain string) bool {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	_, ok := ds.domains[strings.ToLower(domain)]
	return ok
}

// AllowedDomains returns the current allowlist, sorted
func (ds *DomainService) AllowedDomains() []string {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	out := make([]string, 0, len(ds.domains))
	for d := range ds.domains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// RefreshRemote pulls the allowlist document from the configured URL and
// replaces the in-memory set. An empty or failed response keeps the
// current set; shrinking to nothing would lock every caller out of
// creating aliases because of a transient outage.
func (ds *DomainService) RefreshRemote() {
	url := global.Conf.Rotation.AllowlistURL
	if url == "" {
		return
	}
	var doc allowlistDocument
	// force json decoding so a remote that omits Content-Type cannot
	// silently yield an empty document
	resp, err := ds.client.R().SetResult(&doc).ForceContentType("application/json").Get(url)
	if err != nil {
		level.Error(global.Logger).Log("DomainService", "allowlist refresh failed", "error", err.Error())
		return
	}
	if resp.IsError() {
		level.Error(global.Logger).Log("DomainService", "allowlist refresh failed", "status", resp.StatusCode())
		return
	}
	if len(doc.Domains) == 0 {
		global.Logger.Log("DomainService", "allowlist refresh returned no domains, keeping current set")
		return
	}
	ds.replace(doc.Domains)
	global.Logger.Log("DomainService", "allowlist refreshed", "domains", len(doc.Domains))
}

func (ds *DomainService) replace(domains []string) {
	next := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			next[d] = struct{}{}
		}
	}
	ds.mu.Lock()
	ds.domains = next
	ds.mu.Unlock()
}

// Client exposes the resty client for tests
func (ds *DomainService) Client() *resty.Client {
	return ds.client
}
