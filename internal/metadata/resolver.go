// Package metadata resolves the off-ledger JSON document of a card from the uri recorded in
// its on-ledger metadata account.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"

	"github.com/ZilDuck/solana-card-market/internal/entity"
	"github.com/gagliardetto/solana-go"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	ErrNoMetadataUri = errors.New("metadata uri is empty")
	ErrUnsupported   = errors.New("metadata uri is not fetchable")
)

// UriSource reads the metadata uri of a mint. ledger.Reader satisfies it.
type UriSource interface {
	MetadataUri(ctx context.Context, mint solana.PublicKey) (string, error)
}

type Resolver interface {
	Resolve(ctx context.Context, mint solana.PublicKey) (*entity.Metadata, error)
	ResolveAll(ctx context.Context, targets []Target) []entity.Metadata
	Placeholder(key solana.PublicKey) entity.Metadata
}

// Target is one document to resolve. Key names the placeholder used when resolution fails.
type Target struct {
	Key  solana.PublicKey
	Mint solana.PublicKey
}

type Options struct {
	IpfsHosts        []string
	Concurrency      int
	PlaceholderImage string
}

type resolver struct {
	source  UriSource
	client  *retryablehttp.Client
	cache   *cache.Cache
	limiter *rate.Limiter
	opts    Options
}

func NewResolver(source UriSource, client *retryablehttp.Client, c *cache.Cache, limiter *rate.Limiter, opts Options) Resolver {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return resolver{source, client, c, limiter, opts}
}

func (r resolver) Resolve(ctx context.Context, mint solana.PublicKey) (*entity.Metadata, error) {
	uri, err := r.source.MetadataUri(ctx, mint)
	if err != nil {
		return nil, err
	}
	if uri == "" {
		return nil, ErrNoMetadataUri
	}

	if cached, ok := r.cache.Get(uri); ok {
		md := cached.(entity.Metadata)
		return &md, nil
	}

	urls := candidates(uri, r.opts.IpfsHosts)
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, uri)
	}

	var lastErr error
	for _, u := range urls {
		md, err := r.fetch(ctx, u)
		if err == nil {
			r.cache.SetDefault(uri, *md)
			return md, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		zap.L().With(zap.Error(err), zap.String("url", u)).Debug("MetadataResolver: Gateway failed")
		lastErr = err
	}

	return nil, lastErr
}

// ResolveAll never fails: a target that cannot be resolved gets its placeholder. Results
// keep the order of targets.
func (r resolver) ResolveAll(ctx context.Context, targets []Target) []entity.Metadata {
	results := make([]entity.Metadata, len(targets))

	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)

	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			md, err := r.Resolve(ctx, target.Mint)
			if err != nil {
				zap.L().With(
					zap.Error(err),
					zap.String("mint", target.Mint.String()),
				).Warn("MetadataResolver: Using placeholder")
				results[i] = r.Placeholder(target.Key)
				return nil
			}
			results[i] = *md
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Placeholder is a deterministic stand-in keyed by a hash of key.
func (r resolver) Placeholder(key solana.PublicKey) entity.Metadata {
	h := fnv.New32a()
	_, _ = h.Write(key[:])

	return entity.Metadata{
		Name:        fmt.Sprintf("Card #%04d", h.Sum32()%10000),
		Description: "Metadata unavailable",
		Image:       r.opts.PlaceholderImage,
		Placeholder: true,
	}
}

func (r resolver) fetch(ctx context.Context, u string) (*entity.Metadata, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(resp.Status)
	}

	var md entity.Metadata
	if err := json.NewDecoder(resp.Body).Decode(&md); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	return &md, nil
}
