package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"golang.org/x/sync/singleflight"
)

var ErrMissingAPIKey = errors.New("missing TELNYX_API_KEY in secret")

// Provider hands out the gateway API key.
type Provider interface {
	APIKey(ctx context.Context) (string, error)
}

// Source fetches the API key from its backing store on every call.
type Source interface {
	Fetch(ctx context.Context) (string, error)
}

// StaticSource serves a key taken from the environment.
type StaticSource string

func (s StaticSource) Fetch(context.Context) (string, error) {
	if s == "" {
		return "", ErrMissingAPIKey
	}
	return string(s), nil
}

type secretsGetter interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type SecretsManagerSource struct {
	client   secretsGetter
	secretID string
}

func NewSecretsManagerSource(ctx context.Context, region, secretID string) (*SecretsManagerSource, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SecretsManagerSource{
		client:   secretsmanager.NewFromConfig(cfg),
		secretID: secretID,
	}, nil
}

func (s *SecretsManagerSource) Fetch(ctx context.Context) (string, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretID),
	})
	if err != nil {
		return "", fmt.Errorf("get secret %s: %w", s.secretID, err)
	}
	return parseSecret(aws.ToString(out.SecretString))
}

// parseSecret accepts {"TELNYX_API_KEY": "..."} or the bare key.
func parseSecret(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMissingAPIKey
	}

	var doc struct {
		APIKey string `json:"TELNYX_API_KEY"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return raw, nil
	}
	if doc.APIKey == "" {
		return "", ErrMissingAPIKey
	}
	return doc.APIKey, nil
}

// CachedProvider keeps the last fetched key for ttl and collapses concurrent refreshes.
type CachedProvider struct {
	source Source
	ttl    time.Duration
	now    func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	value     string
	expiresAt time.Time
}

func NewCachedProvider(source Source, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		source: source,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (p *CachedProvider) APIKey(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.value != "" && p.now().Before(p.expiresAt) {
		v := p.value
		p.mu.Unlock()
		return v, nil
	}
	p.mu.Unlock()

	v, err, _ := p.group.Do("api-key", func() (any, error) {
		p.mu.Lock()
		if p.value != "" && p.now().Before(p.expiresAt) {
			v := p.value
			p.mu.Unlock()
			return v, nil
		}
		p.mu.Unlock()

		key, err := p.source.Fetch(ctx)
		if err != nil {
			return "", err
		}

		p.mu.Lock()
		p.value = key
		p.expiresAt = p.now().Add(p.ttl)
		p.mu.Unlock()
		return key, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
