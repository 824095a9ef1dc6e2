// Package config provides configuration management for exportd.
//
// Configuration is loaded from a YAML file, completed with defaults,
// overridden from the environment and validated before use.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("exportd.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("exportd.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention EXPORTD_SECTION_FIELD:
//
//   - EXPORTD_MONGO_URI overrides mongo.uri
//   - EXPORTD_LOCK_REDIS_ADDR overrides lock.redis.addr
//   - EXPORTD_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Singleton Pattern
//
//	if err := config.Initialize("exportd.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//	cfg := config.GetConfig()
//
// For testing, prefer dependency injection with explicit Config instances
// rather than the global singleton.
//
// # Example Configuration
//
//	storage:
//	  backend: "sqlite"
//	  sqlite:
//	    path: "data/exportd.db"
//	    driver: "sqlite"
//
//	mongo:
//	  uri: "mongodb://localhost:27017"
//	  database: "cohortline"
//
//	object_store:
//	  backend: "minio"
//	  endpoint: "localhost:9000"
//	  export_bucket: "exports"
//
//	lock:
//	  backend: "redis"
//	  redis:
//	    addr: "localhost:6379"
//
//	jobs:
//	  workers: 2
//	  stuck_timeout: "1h"
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
package config
