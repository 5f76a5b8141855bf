package config

type StorageConfig interface {
	GetDatabaseDSN() string
	GetRedisAddr() string
	GetRedisPassword() string
}

// Storage selects the persistence backends. With no DSN and no Redis address
// everything is held in memory.
type Storage struct{}

var _ StorageConfig = Storage{}

func (Storage) GetDatabaseDSN() string {
	return GetEnv("DATABASE_DSN", "")
}

func (Storage) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "")
}

func (Storage) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}
