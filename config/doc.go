// Package config resolves pipeline settings from layered sources.
//
// Precedence, highest first:
//  1. Command-line flags
//  2. Environment variables (PIPELINE_<KEY>, plus a few well-known aliases
//     such as ANTHROPIC_API_KEY)
//  3. Local config: .pipeline.yaml in the git root
//  4. Global config: ~/.config/agentic-pipeline/config.yaml
//  5. Built-in defaults
//
// Every resolved value remembers its Source, which `pipeline config get`
// prints. Settings is the typed, validated view used by the runner.
//
//	resolved := config.NewResolver(config.Paths{}).Resolve(flags)
//	settings, err := resolved.Settings()
package config
