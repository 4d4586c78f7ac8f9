// Package config handles loading and validating OpsiMate Core configuration.
//
// This package manages:
//   - Loading configuration from a YAML file named by CONFIG_FILE
//   - Synthesising defaults from environment variables when no file exists
//   - Validation of the fields required by the selected database kind
//   - Memoising the result for the lifetime of a Loader
//
// Security Considerations:
//   - Database passwords and the JWT secret should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	loader := config.NewLoader(config.PathFromEnv(), log)
//	cfg, err := loader.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.ServerAddress())
package config
