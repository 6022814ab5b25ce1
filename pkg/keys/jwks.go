package keys

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/turtacn/littlejwt/pkg/errors"
	"github.com/turtacn/littlejwt/pkg/logger"
)

// Resolver finds the verification key for a key id.
type Resolver interface {
	Resolve(ctx context.Context, kid string) (*Key, error)
}

// KeySet indexes keys by their id.
type KeySet struct {
	keys  map[string]*Key
	order []string
}

// NewKeySet builds a set from keys. Every key needs a unique id.
func NewKeySet(keys ...*Key) (*KeySet, error) {
	s := &KeySet{keys: make(map[string]*Key, len(keys))}
	for _, k := range keys {
		if err := s.Add(k); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// KeySetFromJWKS parses a JSON Web Key Set document. Members that cannot be
// turned into a key, typically because they carry no alg, are skipped.
func KeySetFromJWKS(data []byte, log logger.Logger) (*KeySet, error) {
	if log == nil {
		log = logger.L()
	}
	var doc struct {
		Keys []map[string]interface{} `json:"keys"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidKey, "JWKS is not valid JSON")
	}

	s := &KeySet{keys: make(map[string]*Key, len(doc.Keys))}
	for i, jwk := range doc.Keys {
		k, err := FromJWK(jwk)
		if err != nil {
			log.Debug(context.Background(), "skipping JWKS member", logger.Int("index", i), logger.Err(err))
			continue
		}
		if err := s.Add(k); err != nil {
			log.Debug(context.Background(), "skipping JWKS member", logger.Int("index", i), logger.Err(err))
		}
	}
	return s, nil
}

// Add inserts k.
func (s *KeySet) Add(k *Key) error {
	if k == nil || k.ID() == "" {
		return errors.InvalidKey("keys in a set need a key id")
	}
	if _, dup := s.keys[k.ID()]; dup {
		return errors.InvalidKey(fmt.Sprintf("duplicate key id %q", k.ID()))
	}
	s.keys[k.ID()] = k
	s.order = append(s.order, k.ID())
	return nil
}

func (s *KeySet) Lookup(kid string) (*Key, bool) {
	if s == nil {
		return nil, false
	}
	k, ok := s.keys[kid]
	return k, ok
}

func (s *KeySet) Resolve(_ context.Context, kid string) (*Key, error) {
	if k, ok := s.Lookup(kid); ok {
		return k, nil
	}
	return nil, errors.MissingKey(fmt.Sprintf("no key with id %q", kid))
}

func (s *KeySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// JWKS exports the public parameters of every key in insertion order.
func (s *KeySet) JWKS() map[string]interface{} {
	members := make([]interface{}, 0, s.Len())
	if s != nil {
		for _, kid := range s.order {
			members = append(members, s.keys[kid].JWK())
		}
	}
	return map[string]interface{}{"keys": members}
}

// RemoteKeySet serves keys from a JWKS endpoint. The document is fetched on
// the first miss and again whenever an unknown key id shows up; unchanged
// documents are detected with ETags.
type RemoteKeySet struct {
	url        string
	httpClient *http.Client
	log        logger.Logger

	mu   sync.RWMutex
	set  *KeySet
	etag string
	sf   singleflight.Group
}

// NewRemoteKeySet creates a key set for url. A nil client uses one with a
// ten second timeout.
func NewRemoteKeySet(url string, client *http.Client, log logger.Logger) *RemoteKeySet {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = logger.L()
	}
	return &RemoteKeySet{url: url, httpClient: client, log: log.WithComponent("keys.jwks")}
}

// Resolve returns the key for kid, refreshing the document once on a miss.
func (r *RemoteKeySet) Resolve(ctx context.Context, kid string) (*Key, error) {
	if k, ok := r.lookup(kid); ok {
		return k, nil
	}
	if err := r.Refresh(ctx); err != nil {
		return nil, err
	}
	if k, ok := r.lookup(kid); ok {
		return k, nil
	}
	return nil, errors.MissingKey(fmt.Sprintf("no key with id %q at %s", kid, r.url))
}

func (r *RemoteKeySet) lookup(kid string) (*Key, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.set.Lookup(kid)
}

// Refresh fetches the document. Concurrent callers share one request.
func (r *RemoteKeySet) Refresh(ctx context.Context) error {
	_, err, _ := r.sf.Do("refresh", func() (interface{}, error) {
		return nil, r.fetch(ctx)
	})
	return err
}

func (r *RemoteKeySet) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return errors.Wrap(err, errors.CodeConfig, "invalid JWKS url")
	}

	r.mu.RLock()
	if r.etag != "" {
		req.Header.Set("If-None-Match", r.etag)
	}
	r.mu.RUnlock()

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.log.Error(ctx, "JWKS fetch failed", err, logger.String("url", r.url))
		return errors.Wrap(err, errors.CodeMissingKey, "cannot fetch JWKS")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return errors.MissingKey(fmt.Sprintf("JWKS endpoint answered %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, errors.CodeMissingKey, "cannot read JWKS")
	}
	set, err := KeySetFromJWKS(body, r.log)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.set = set
	r.etag = resp.Header.Get("ETag")
	r.mu.Unlock()
	r.log.Debug(ctx, "JWKS refreshed", logger.String("url", r.url), logger.Int("keys", set.Len()))
	return nil
}
