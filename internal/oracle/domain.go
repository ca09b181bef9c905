package oracle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/d60-Lab/did-node/config"
	"github.com/d60-Lab/did-node/internal/metrics"
	"github.com/d60-Lab/did-node/pkg/didkey"
)

// KeyDocumentPath is where a domain serves its PEM public key.
const KeyDocumentPath = "did.pem"

const (
	breakerMaxRequests  = 3
	breakerInterval     = 10 * time.Second
	breakerFailureRatio = 0.6
	// breakerCacheSize bounds how many domains keep breaker state
	breakerCacheSize = 4096
)

var (
	errStatus = errors.New("unexpected status")
	// errAbandoned marks a fetch cut short by the caller's own context
	errAbandoned = errors.New("caller gave up")
)

// DomainClient fetches key documents and attested pages from domains.
type DomainClient struct {
	client   *http.Client
	scheme   string
	timeout  time.Duration
	maxBytes int64
	breakTTL time.Duration
	log      *zap.Logger
	metrics  *metrics.Metrics

	breakerMu sync.Mutex
	breakers  *lru.Cache[string, *gobreaker.CircuitBreaker]
}

// DomainOption customises a DomainClient.
type DomainOption func(*DomainClient)

// WithDomainHTTPClient replaces the HTTP client. Its Timeout is forced to the
// configured oracle timeout.
func WithDomainHTTPClient(c *http.Client) DomainOption {
	return func(d *DomainClient) { d.client = c }
}

// WithDomainMetrics attaches collectors.
func WithDomainMetrics(m *metrics.Metrics) DomainOption {
	return func(d *DomainClient) { d.metrics = m }
}

func NewDomainClient(cfg config.OracleConfig, log *zap.Logger, opts ...DomainOption) *DomainClient {
	d := &DomainClient{
		client:   &http.Client{},
		scheme:   cfg.DomainScheme,
		timeout:  cfg.DomainTimeout,
		maxBytes: cfg.ContentMaxBytes,
		breakTTL: cfg.BreakerTimeout,
		log:      log,
	}
	d.breakers, _ = lru.New[string, *gobreaker.CircuitBreaker](breakerCacheSize)
	for _, opt := range opts {
		opt(d)
	}
	d.client.Timeout = d.timeout
	if d.scheme == "" {
		d.scheme = "http"
	}
	if d.breakTTL <= 0 {
		d.breakTTL = 30 * time.Second
	}
	return d
}

// GetPublicKey fetches {scheme}://{domain}/did.pem and parses the secp256k1 key.
func (d *DomainClient) GetPublicKey(ctx context.Context, domain string) (*secp256k1.PublicKey, error) {
	body, err := d.get(ctx, "key", domain, KeyDocumentPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrKeyFetch, domain, err)
	}
	pub, err := didkey.ParsePublicKeyPEM(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidKey, domain, err)
	}
	return pub, nil
}

// GetContent fetches {scheme}://{domain}/{path}.
func (d *DomainClient) GetContent(ctx context.Context, domain, path string) ([]byte, error) {
	body, err := d.get(ctx, "content", domain, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %v", ErrContentFetch, domain, path, err)
	}
	return body, nil
}

func (d *DomainClient) get(ctx context.Context, kind, domain, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", errAbandoned, err)
	}
	start := time.Now()
	out, err := d.breaker(domain).Execute(func() (interface{}, error) {
		body, err := d.do(ctx, domain, path)
		// a caller hanging up is not a domain fault
		if err != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", errAbandoned, err)
		}
		return body, err
	})
	status := "ok"
	if err != nil {
		status = "error"
		d.log.Debug("domain fetch failed", zap.String("kind", kind), zap.String("domain", domain),
			zap.String("path", path), zap.Error(err))
	}
	d.metrics.Oracle("domain_"+kind, status, time.Since(start))
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func (d *DomainClient) do(ctx context.Context, domain, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	url := fmt.Sprintf("%s://%s/%s", d.scheme, domain, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w %d from %s", errStatus, resp.StatusCode, url)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > d.maxBytes {
		return nil, fmt.Errorf("%w: body from %s exceeds %d bytes", errStatus, url, d.maxBytes)
	}
	return body, nil
}

// breaker returns the per-domain circuit breaker. Only transport failures and
// the oracle timeout count against it; a 404 is an answer, not an outage, and
// a caller hanging up says nothing about the domain.
func (d *DomainClient) breaker(domain string) *gobreaker.CircuitBreaker {
	d.breakerMu.Lock()
	defer d.breakerMu.Unlock()
	if cb, ok := d.breakers.Get(domain); ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        domain,
		MaxRequests: breakerMaxRequests,
		Interval:    breakerInterval,
		Timeout:     d.breakTTL,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= breakerMaxRequests && ratio >= breakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errStatus) || errors.Is(err, errAbandoned)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.log.Info("domain circuit breaker state changed",
				zap.String("domain", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	d.breakers.Add(domain, cb)
	return cb
}
