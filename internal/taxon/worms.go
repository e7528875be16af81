// Package taxon resolves scientific names to their accepted name and
// synonyms using the WoRMS (World Register of Marine Species) REST API.
package taxon

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/matsen/firstrecord/internal/apiclient"
	"github.com/matsen/firstrecord/internal/logger"
)

const (
	// BaseURL is the WoRMS REST endpoint.
	BaseURL = "https://www.marinespecies.org/rest"

	// RateLimit keeps WoRMS calls polite.
	RateLimit = 2.0

	// DefaultCacheSize is the number of resolutions kept in memory.
	DefaultCacheSize = 512

	// ambiguousID is returned by AphiaIDByName when several taxa match.
	ambiguousID = -999
)

// Resolution is the outcome of resolving one name.
type Resolution struct {
	Success      bool     `json:"success"`
	InputName    string   `json:"inputName"`
	AcceptedName string   `json:"acceptedName,omitempty"`
	RegistryID   int      `json:"registryId,omitempty"`
	Authority    string   `json:"authority,omitempty"`
	Synonyms     []string `json:"synonyms"`
	Error        string   `json:"error,omitempty"`
}

// Resolver resolves a scientific name.
type Resolver interface {
	Resolve(ctx context.Context, name string) (*Resolution, error)
}

// AphiaRecord is the subset of a WoRMS record used here.
type AphiaRecord struct {
	AphiaID        int    `json:"AphiaID"`
	ScientificName string `json:"scientificname"`
	Authority      string `json:"authority"`
	Status         string `json:"status"`
	ValidAphiaID   int    `json:"valid_AphiaID"`
	ValidName      string `json:"valid_name"`
}

// WormsClient calls WoRMS.
type WormsClient struct {
	api    *apiclient.Client
	logger *slog.Logger
}

// NewWormsClient creates a WoRMS client.
func NewWormsClient(logger *slog.Logger, opts ...apiclient.Option) *WormsClient {
	base := []apiclient.Option{apiclient.WithRateLimit(RateLimit)}
	return &WormsClient{
		api:    apiclient.New("WoRMS", BaseURL, append(base, opts...)...),
		logger: logger,
	}
}

// Resolve looks up name, follows it to the accepted taxon, and lists the
// accepted taxon's synonyms. An unknown or ambiguous name yields
// Success=false rather than an error; transport failures are errors.
func (w *WormsClient) Resolve(ctx context.Context, name string) (*Resolution, error) {
	name = strings.Join(strings.Fields(name), " ")
	res := &Resolution{InputName: name, Synonyms: []string{}}
	if name == "" {
		res.Error = "empty name"
		return res, nil
	}

	id := 0
	err := w.api.GetJSON(ctx, "/AphiaIDByName/"+url.PathEscape(name), url.Values{"marine_only": {"true"}}, &id)
	if err != nil && !apiclient.IsNotFound(err) {
		return nil, fmt.Errorf("worms lookup %q: %w", name, err)
	}
	switch {
	case id == ambiguousID:
		res.Error = "name matches more than one taxon"
		return res, nil
	case id <= 0:
		res.Error = "name not found"
		return res, nil
	}

	var rec AphiaRecord
	if err := w.api.GetJSON(ctx, fmt.Sprintf("/AphiaRecordByAphiaID/%d", id), nil, &rec); err != nil {
		return nil, fmt.Errorf("worms record %d: %w", id, err)
	}
	if rec.ValidAphiaID > 0 && rec.ValidAphiaID != rec.AphiaID {
		logger.FromContext(ctx, w.logger).Debug("taxon_follow_accepted",
			slog.String("name", name),
			slog.Int("aphia_id", rec.AphiaID),
			slog.Int("valid_aphia_id", rec.ValidAphiaID))
		id = rec.ValidAphiaID
		if err := w.api.GetJSON(ctx, fmt.Sprintf("/AphiaRecordByAphiaID/%d", id), nil, &rec); err != nil {
			return nil, fmt.Errorf("worms record %d: %w", id, err)
		}
	}

	var syns []AphiaRecord
	err = w.api.GetJSON(ctx, fmt.Sprintf("/AphiaSynonymsByAphiaID/%d", id), nil, &syns)
	if err != nil && !apiclient.IsNotFound(err) {
		return nil, fmt.Errorf("worms synonyms %d: %w", id, err)
	}

	res.Success = true
	res.RegistryID = rec.AphiaID
	res.AcceptedName = rec.ScientificName
	res.Authority = rec.Authority
	seen := map[string]bool{rec.ScientificName: true}
	for _, s := range syns {
		if s.ScientificName == "" || seen[s.ScientificName] {
			continue
		}
		seen[s.ScientificName] = true
		res.Synonyms = append(res.Synonyms, s.ScientificName)
	}
	return res, nil
}

// CachedResolver memoizes successful resolutions of another Resolver.
type CachedResolver struct {
	next  Resolver
	cache *lru.Cache[string, Resolution]
}

// NewCachedResolver wraps next with an LRU cache of size entries.
func NewCachedResolver(next Resolver, size int) (*CachedResolver, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, Resolution](size)
	if err != nil {
		return nil, fmt.Errorf("creating taxon cache: %w", err)
	}
	return &CachedResolver{next: next, cache: cache}, nil
}

// Resolve implements Resolver.
func (c *CachedResolver) Resolve(ctx context.Context, name string) (*Resolution, error) {
	key := strings.ToLower(strings.Join(strings.Fields(name), " "))
	if r, ok := c.cache.Get(key); ok {
		r.Synonyms = append([]string(nil), r.Synonyms...)
		return &r, nil
	}
	r, err := c.next.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	if r.Success {
		cp := *r
		cp.Synonyms = append([]string(nil), r.Synonyms...)
		c.cache.Add(key, cp)
	}
	return r, nil
}
