package integration

import (
	"context"

	"github.com/shaiso/stocksync/internal/breaker"
	"github.com/shaiso/stocksync/internal/ratelimit"
	"github.com/shaiso/stocksync/internal/retry"
)

// WithRateLimit ждёт слот лимитера перед каждым запросом.
func WithRateLimit(l *ratelimit.Limiter) Middleware {
	return func(next Doer) Doer {
		return func(ctx context.Context, req *Request) (*Response, error) {
			if err := l.Wait(ctx); err != nil {
				return nil, err
			}
			return next(ctx, req)
		}
	}
}

// WithRetry повторяет запрос согласно политике.
func WithRetry(p retry.Policy) Middleware {
	return func(next Doer) Doer {
		return func(ctx context.Context, req *Request) (*Response, error) {
			var resp *Response
			err := retry.Do(ctx, p, func(ctx context.Context) error {
				r, err := next(ctx, req)
				if err != nil {
					return err
				}
				resp = r
				return nil
			})
			if err != nil {
				return nil, err
			}
			return resp, nil
		}
	}
}

// WithBreaker пропускает запрос через circuit breaker.
//
// Клиентские ошибки (4xx, кроме 408/429) возвращаются вызывающему,
// но для breaker'а считаются успехом: upstream ответил.
func WithBreaker(b *breaker.Breaker) Middleware {
	return func(next Doer) Doer {
		return func(ctx context.Context, req *Request) (*Response, error) {
			var (
				resp      *Response
				clientErr error
			)

			err := b.Execute(ctx, func(ctx context.Context) error {
				r, err := next(ctx, req)
				if err != nil {
					if isClientError(err) {
						clientErr = err
						return nil
					}
					return err
				}
				resp = r
				return nil
			})
			if err != nil {
				return nil, err
			}
			if clientErr != nil {
				return nil, clientErr
			}
			return resp, nil
		}
	}
}
