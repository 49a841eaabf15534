package storage

import "time"

// Config holds the connection settings of every backing service
type Config struct {
	// PostgreSQL
	PostgresURL         string        `yaml:"postgres_url"`
	PostgresMaxConns    int           `yaml:"postgres_max_conns"`
	PostgresMinConns    int           `yaml:"postgres_min_conns"`
	PostgresTimeout     time.Duration `yaml:"postgres_timeout"`
	PostgresMaxLifetime time.Duration `yaml:"postgres_max_lifetime"`

	// Redis
	RedisURL        string `yaml:"redis_url"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	RedisMaxRetries int    `yaml:"redis_max_retries"`
	RedisPoolSize   int    `yaml:"redis_pool_size"`

	// S3 audit archive; disabled when S3Bucket is empty
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3Region       string `yaml:"s3_region"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		PostgresMaxConns:    20,
		PostgresMinConns:    2,
		PostgresTimeout:     5 * time.Second,
		PostgresMaxLifetime: 30 * time.Minute,
		RedisDB:             -1,
		S3Region:            "us-east-1",
	}
}
