package service

import (
	"context"

	"go.uber.org/zap"
)

// Middleware transforms data around provider calls. Hooks observe;
// middleware rewrites: inject steering context before the call, trim the
// response after.
type Middleware interface {
	Name() string

	// BeforeModel receives the outgoing messages and returns a (possibly
	// modified) copy. Implementations must not mutate the input in place.
	BeforeModel(ctx context.Context, req *ProviderRequest, step int) *ProviderRequest

	// AfterModel receives the response and returns a (possibly modified) copy.
	AfterModel(ctx context.Context, resp *ProviderResponse, step int) *ProviderResponse
}

// MiddlewarePipeline runs BeforeModel in registration order and AfterModel
// in reverse, HTTP-middleware style.
type MiddlewarePipeline struct {
	middlewares []Middleware
	logger      *zap.Logger
}

func NewMiddlewarePipeline(logger *zap.Logger) *MiddlewarePipeline {
	return &MiddlewarePipeline{
		middlewares: make([]Middleware, 0, 4),
		logger:      logger,
	}
}

func (p *MiddlewarePipeline) Use(mws ...Middleware) {
	p.middlewares = append(p.middlewares, mws...)
}

func (p *MiddlewarePipeline) Len() int { return len(p.middlewares) }

func (p *MiddlewarePipeline) RunBeforeModel(ctx context.Context, req *ProviderRequest, step int) *ProviderRequest {
	for _, mw := range p.middlewares {
		req = mw.BeforeModel(ctx, req, step)
	}
	return req
}

func (p *MiddlewarePipeline) RunAfterModel(ctx context.Context, resp *ProviderResponse, step int) *ProviderResponse {
	for i := len(p.middlewares) - 1; i >= 0; i-- {
		resp = p.middlewares[i].AfterModel(ctx, resp, step)
	}
	return resp
}

// NoOpMiddleware is the embeddable pass-through.
type NoOpMiddleware struct{}

func (NoOpMiddleware) BeforeModel(_ context.Context, req *ProviderRequest, _ int) *ProviderRequest {
	return req
}

func (NoOpMiddleware) AfterModel(_ context.Context, resp *ProviderResponse, _ int) *ProviderResponse {
	return resp
}
