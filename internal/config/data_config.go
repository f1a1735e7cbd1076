package config

import "time"

type Data struct{}

var _ DataConfig = Data{}

// GetDatabaseURL switches profile reads to a direct Postgres connection when set
func (Data) GetDatabaseURL() string {
	return GetEnv("DATABASE_URL", "")
}

// GetRedisURL enables the profile read-through cache when set
func (Data) GetRedisURL() string {
	return GetEnv("REDIS_URL", "")
}

func (Data) GetProfileCacheTTL() time.Duration {
	return GetEnvDuration("PROFILE_CACHE_TTL", time.Minute)
}
