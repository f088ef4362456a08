package config

type RedisConfig interface {
	GetRedisURL() string
	GetRedisEnabled() bool
}

type Redis struct{}

var _ RedisConfig = Redis{}

func (Redis) GetRedisURL() string {
	return GetEnv("REDIS_URL", "redis://localhost:6379/0")
}

// GetRedisEnabled gates the whole KV layer. When false every cache and
// rate-limit call becomes a no-op and the portal runs purely read-through.
func (Redis) GetRedisEnabled() bool {
	return GetEnvBool("REDIS_ENABLED", false)
}
