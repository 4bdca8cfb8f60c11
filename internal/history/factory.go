package history

import (
	"context"
	"fmt"

	"github.com/comigor/twin/internal/cloud"
	"github.com/comigor/twin/internal/config"
	"github.com/comigor/twin/internal/logger"
)

// New builds the store selected by cfg.Storage. The choice is made once, at
// startup; nothing else in the process looks at the backend.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	backend := cfg.Storage.BackendName()
	switch backend {
	case config.BackendLocal:
		logger.L.Info("using local conversation store", "dir", cfg.Storage.MemoryDir)
		return NewFileStore(cfg.Storage.MemoryDir), nil

	case config.BackendS3:
		awsCfg, err := cloud.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.L.Info("using s3 conversation store", "bucket", cfg.Storage.S3Bucket, "prefix", cfg.Storage.S3Prefix)
		client := cloud.NewS3Client(awsCfg, cfg.Storage.S3Endpoint)
		return NewS3Store(client, cfg.Storage.S3Bucket, cfg.Storage.S3Prefix), nil

	case config.BackendSQLite:
		logger.L.Info("using sqlite conversation store", "path", cfg.Storage.SQLitePath)
		s, err := OpenSQLite(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil

	case config.BackendRedis:
		logger.L.Info("using redis conversation store", "addr", cfg.Storage.RedisAddr)
		s, err := DialRedis(ctx, cfg.Storage.RedisAddr, cfg.Storage.RedisPrefix)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", backend)
}
