package config

// Source indicates where a configuration value came from.
type Source string

// Configuration sources, lowest precedence first.
const (
	SourceDefault Source = "default"
	SourceGlobal  Source = "global"
	SourceLocal   Source = "local"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
)
