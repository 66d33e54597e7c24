package app

import (
	"time"

	"github.com/lessonreel/lessonreel-backend/internal/platform/envutil"
	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
)

type Config struct {
	ServiceName       string
	Environment       string
	JWTSecretKey      string
	CacheTTL          time.Duration
	RedisAddr         string
	MediaProbeURL     string
	QuestionGenURL    string
	QuestionGenAPIKey string
}

func LoadConfig(log *logger.Logger) Config {
	cacheTTLSeconds := envutil.GetEnvAsInt("CACHE_TTL_SECONDS", 30, log)
	return Config{
		ServiceName:       envutil.GetEnv("SERVICE_NAME", "lessonreel-backend", log),
		Environment:       envutil.GetEnv("ENVIRONMENT", "development", log),
		JWTSecretKey:      envutil.GetEnv("JWT_SECRET_KEY", "defaultsecret", log),
		CacheTTL:          time.Duration(cacheTTLSeconds) * time.Second,
		RedisAddr:         envutil.GetEnv("REDIS_ADDR", "", log),
		MediaProbeURL:     envutil.GetEnv("MEDIA_PROBE_URL", "", log),
		QuestionGenURL:    envutil.GetEnv("QUESTION_GEN_URL", "", log),
		QuestionGenAPIKey: envutil.GetEnv("QUESTION_GEN_API_KEY", "", log),
	}
}
