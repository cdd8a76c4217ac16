// Package config provides layered configuration for ackretry.
//
// Sources are applied in order, later ones winning:
//
//  1. Default(): built-in values (nats://localhost:4222,
//     60s keepalive, target "unsubscribe/test", 1000ms base, 3000ms cap,
//     999 attempts).
//  2. Each file added with AddLayer, YAML or JSON. Keys absent from a file
//     keep their previous value; unknown keys are rejected.
//  3. ACKRETRY_* environment variables, optionally seeded from .env files by
//     LoadEnvFiles.
//
// Command line flags are applied last by the binary itself.
//
// Example:
//
//	loader := config.NewLoader()
//	loader.AddLayer("ackretry.yaml")
//	loader.EnableValidation(true)
//	cfg, err := loader.Load()
//
// A minimal file:
//
//	broker:
//	  url: nats://broker:4222
//	  keepalive: 30s
//	backoff:
//	  base_delay_ms: 500
//	  max_delay_ms: 8000
//	  max_attempts: 20
//	timeouts:
//	  connect: 10s
package config
