// Package config provides server configuration for duelhall.
//
// The config package handles:
//   - Loading a .env file when one is present
//   - Parsing DUELHALL_* and NGROK_* environment variables
//   - Command-line flag overrides
//   - Validation of the combined result
//
// Precedence, lowest to highest: built-in defaults, .env, process
// environment, flags. A variable already set in the environment is not
// replaced by the .env file.
//
// Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	cfg.BindFlags(flag.CommandLine)
//	flag.Parse()
//
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
package config
