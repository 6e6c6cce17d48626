package darkrecon

import (
	"context"
	"io"
	"sync/atomic"
)

func init() {
	// Silence the logger while running tests
	Log.SetOutput(io.Discard)
}

// TestProvider is a configurable provider used for testing. It counts
// fetches, can be set to fail, and both fetch and normalize can be
// defined externally.
type TestProvider struct {
	ProviderName  string
	Types         []TargetType
	Credentials   []string
	FetchFunc     func(ctx context.Context, target string, typ TargetType) (map[string]interface{}, error)
	NormalizeFunc func(raw map[string]interface{}, target string, typ TargetType) (*Record, error)

	hitCount int32
	failWith error
}

var _ Provider = (*TestProvider)(nil)

func (p *TestProvider) Name() string {
	if p.ProviderName == "" {
		return "test"
	}
	return p.ProviderName
}

func (p *TestProvider) Supports(t TargetType) bool {
	if len(p.Types) == 0 {
		return true
	}
	for _, pt := range p.Types {
		if pt == t {
			return true
		}
	}
	return false
}

func (p *TestProvider) RequiredCredentials() []string { return p.Credentials }

func (p *TestProvider) Fetch(ctx context.Context, target string, typ TargetType) (map[string]interface{}, error) {
	atomic.AddInt32(&p.hitCount, 1)
	if p.failWith != nil {
		return nil, p.failWith
	}
	if p.FetchFunc != nil {
		return p.FetchFunc(ctx, target, typ)
	}
	return map[string]interface{}{"target": target}, nil
}

func (p *TestProvider) Normalize(raw map[string]interface{}, target string, typ TargetType) (*Record, error) {
	if p.NormalizeFunc != nil {
		return p.NormalizeFunc(raw, target, typ)
	}
	rec := NewRecord(target, typ)
	rec.Source = p.Name()
	rec.Raw[p.Name()] = raw
	return rec, nil
}

func (p *TestProvider) HitCount() int {
	return int(atomic.LoadInt32(&p.hitCount))
}

func (p *TestProvider) SetFail(err error) {
	p.failWith = err
}
