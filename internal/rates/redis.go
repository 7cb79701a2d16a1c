package rates

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultKey is the hash the pricing job writes to.
const DefaultKey = "pointify:rates"

const (
	fieldPointsPerBRL = "points_per_brl"
	fieldUSDTPerPoint = "usdt_per_point"
	fieldBTCPerPoint  = "btc_per_point"
)

type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// RedisSource reads rates from a Redis hash. Missing or unparsable fields, and
// an unreachable Redis, fall back to the fallback source field by field.
type RedisSource struct {
	client   hashReader
	key      string
	fallback Source
	logger   *zap.Logger
}

func NewRedisSource(client hashReader, key string, fallback Source, logger *zap.Logger) *RedisSource {
	if key == "" {
		key = DefaultKey
	}
	return &RedisSource{client: client, key: key, fallback: fallback, logger: logger}
}

func (s *RedisSource) Current(ctx context.Context) (Rates, error) {
	base, err := s.fallback.Current(ctx)
	if err != nil {
		return Rates{}, err
	}

	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		s.logger.Warn("rates: redis read failed, using fallback", zap.String("key", s.key), zap.Error(err))
		return base, nil
	}

	out := base
	s.override(fields, fieldPointsPerBRL, &out.PointsPerBRL)
	s.override(fields, fieldUSDTPerPoint, &out.USDTPerPoint)
	s.override(fields, fieldBTCPerPoint, &out.BTCPerPoint)
	return out, nil
}

func (s *RedisSource) override(fields map[string]string, name string, dst *decimal.Decimal) {
	raw, ok := fields[name]
	if !ok {
		return
	}
	v, err := decimal.NewFromString(raw)
	if err != nil || !v.IsPositive() {
		s.logger.Warn("rates: ignoring bad field", zap.String("field", name), zap.String("value", raw))
		return
	}
	*dst = v
}
