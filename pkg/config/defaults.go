package config

import (
	"time"

	"github.com/spf13/viper"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_upload_size", "100MB")
	v.SetDefault("server.share_rate_limit", 0.0)
	v.SetDefault("server.share_rate_burst", 20)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "data/filevault.db")
	v.SetDefault("database.max_open_conns", 0)
	v.SetDefault("database.conn_max_lifetime", time.Duration(0))

	v.SetDefault("content.type", "fs")
	v.SetDefault("content.fs.root", "data/content")
	v.SetDefault("content.s3.bucket", "")
	v.SetDefault("content.s3.region", "us-east-1")
	v.SetDefault("content.s3.endpoint", "")
	v.SetDefault("content.s3.access_key_id", "")
	v.SetDefault("content.s3.secret_access_key", "")
	v.SetDefault("content.s3.key_prefix", "")
	v.SetDefault("content.s3.use_path_style", false)
	v.SetDefault("content.badger.dir", "data/badger")

	v.SetDefault("auth.mode", "static")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.static_owner", "system")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("bucket.default_name", "my-bucket")
	v.SetDefault("bucket.default_owner", "system")

	v.SetDefault("share.max_attempts", 3)
	v.SetDefault("share.initial_backoff", 100*time.Millisecond)
	v.SetDefault("share.max_backoff", 2*time.Second)
	v.SetDefault("share.failure_ratio", 0.5)
	v.SetDefault("share.minimum_requests", 10)
	v.SetDefault("share.window", 60*time.Second)
	v.SetDefault("share.open_timeout", 30*time.Second)
	v.SetDefault("share.half_open_requests", 3)

	v.SetDefault("metrics.enabled", true)
}
