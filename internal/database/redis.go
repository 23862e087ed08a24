package database

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/mcloones/rewards/internal/logging"
	"github.com/spf13/viper"
)

// InitRedis initializes Redis client with config. Redis is optional: without it tokens
// cannot be revoked and award events are not queued.
func InitRedis() *redis.Client {
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	addr := viper.GetString("redis.host") + ":" + viper.GetString("redis.port")
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logging.For("REDIS").WithError(err).Warn("Redis connection failed, continuing without Redis")
		rdb.Close()
		return nil
	}

	logging.For("REDIS").Info("Redis connection established")
	return rdb
}
