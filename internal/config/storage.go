package config

import (
	"os"
	"sync"
)

// StorageConfig picks the CV file backend: local disk by default, S3 when
// STORAGE_DRIVER=s3 and the MinIO credentials are present.
type StorageConfig struct {
	Driver    string // "local" or "s3"
	LocalDir  string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

var (
	storageConfig *StorageConfig
	storageOnce   sync.Once
)

func LoadStorageConfig() *StorageConfig {
	storageOnce.Do(func() {
		driver := os.Getenv("STORAGE_DRIVER")
		if driver == "" {
			driver = "local"
		}
		dir := os.Getenv("STORAGE_LOCAL_DIR")
		if dir == "" {
			dir = "./uploads/cv"
		}
		storageConfig = &StorageConfig{
			Driver:    driver,
			LocalDir:  dir,
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Bucket:    os.Getenv("S3_BUCKET"),
			UseSSL:    os.Getenv("S3_USE_SSL") == "true",
		}
	})
	return storageConfig
}
