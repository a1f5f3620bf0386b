// Package config handles loading and validating TapGate configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (master secret, JWT secret, broker passwords) should
//     be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - A missing or malformed card-key master secret fails validation: the
//     process must not start without it
//
// Performance Characteristics:
//   - Configuration is loaded once at startup
//   - No runtime overhead after initial load
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config
