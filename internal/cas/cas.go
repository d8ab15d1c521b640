// Package cas defines the content-addressable store interface consumed by
// the Rooter and the Projection, plus a concrete IPFS-gateway-backed
// implementation fronted by an in-memory LRU cache.
//
// Grounded on the teacher's core/storage.go IPFS pin/retrieve wrapper,
// generalized from a gas-metered token-chain attachment store into the
// plain write/read CAS the Sidetree core expects.
package cas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// Store is the CAS contract: deterministic content addressing, idempotent
// writes, NotFound on an unknown hash.
type Store interface {
	Write(ctx context.Context, data []byte) (string, error)
	Read(ctx context.Context, hash string) ([]byte, error)
}

// ErrNotFound is returned by Read when hash is unknown to the store.
var ErrNotFound = fmt.Errorf("cas: not found")

// GatewayStore pins to and fetches from an IPFS HTTP gateway, with an
// in-memory LRU cache in front of both paths.
type GatewayStore struct {
	client      *http.Client
	pinEndpoint string
	getEndpoint string
	cache       *lru.Cache[string, []byte]
	logger      *logrus.Logger
}

// Config configures a GatewayStore.
type Config struct {
	GatewayURL     string
	GatewayTimeout time.Duration
	CacheEntries   int
}

// NewGatewayStore wires a GatewayStore against an IPFS gateway.
func NewGatewayStore(cfg Config, logger *logrus.Logger) (*GatewayStore, error) {
	if cfg.CacheEntries <= 0 {
		cfg.CacheEntries = 10_000
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 30 * time.Second
	}
	cache, err := lru.New[string, []byte](cfg.CacheEntries)
	if err != nil {
		return nil, fmt.Errorf("cas: building cache: %w", err)
	}
	return &GatewayStore{
		client:      &http.Client{Timeout: cfg.GatewayTimeout},
		pinEndpoint: cfg.GatewayURL + "/api/v0/add?pin=true",
		getEndpoint: cfg.GatewayURL + "/ipfs/",
		cache:       cache,
		logger:      logger,
	}, nil
}

// Write computes a CIDv1 over a SHA2-256 multihash of data, pins data to the
// gateway, and returns the CID string. Identical input always yields the
// same CID, so repeated writes of the same bytes are idempotent.
func (s *GatewayStore) Write(ctx context.Context, data []byte) (string, error) {
	correlationID := uuid.New().String()
	sugar := zap.L().Sugar().With("correlationId", correlationID)

	digest, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("cas: hashing: %w", err)
	}
	c := cid.NewCidV1(cid.Raw, digest)
	hash := c.String()

	if _, ok := s.cache.Get(hash); ok {
		return hash, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.pinEndpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		sugar.Errorf("gateway pin failed: %v", err)
		return "", fmt.Errorf("cas: gateway pin: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		sugar.Errorf("gateway pin status %d: %s", resp.StatusCode, string(b))
		return "", fmt.Errorf("cas: gateway pin status %d: %s", resp.StatusCode, string(b))
	}

	var meta struct {
		Hash string `json:"Hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return "", fmt.Errorf("cas: decoding gateway response: %w", err)
	}
	if meta.Hash != hash {
		return "", fmt.Errorf("cas: cid mismatch: local %s, gateway %s", hash, meta.Hash)
	}

	s.cache.Add(hash, data)
	s.logger.WithField("cid", hash).WithField("bytes", len(data)).Debug("pinned CAS entry")
	sugar.Infof("pinned CAS entry %s (%d bytes)", hash, len(data))
	return hash, nil
}

// Read returns data for hash, checking the cache before falling back to the
// gateway.
func (s *GatewayStore) Read(ctx context.Context, hash string) ([]byte, error) {
	if b, ok := s.cache.Get(hash); ok {
		return b, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.getEndpoint+hash, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cas: gateway fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("cas: gateway fetch status %d: %s", resp.StatusCode, string(b))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	s.cache.Add(hash, data)
	s.logger.WithField("cid", hash).WithField("bytes", len(data)).Debug("retrieved CAS entry")
	return data, nil
}
