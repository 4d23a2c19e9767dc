package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scope selects which file Save writes.
type Scope string

// Writable scopes.
const (
	ScopeGlobal Scope = "global"
	ScopeLocal  Scope = "local"
)

// Save errors.
var (
	ErrUnknownKey     = errors.New("unknown config key")
	ErrSecretInLocal  = errors.New("secrets cannot be stored in local config")
	ErrNoLocalConfig  = errors.New("no git root found for local config")
	ErrNoGlobalConfig = errors.New("global config path unavailable")
)

// Save writes key=value into the file for scope, keeping the other keys.
// An empty value removes the key.
func (r *Resolver) Save(scope Scope, key, value string) error {
	if !IsKnown(key) {
		return fmt.Errorf("%w: %s\n\nValid keys: %s", ErrUnknownKey, key, strings.Join(Keys(), ", "))
	}

	var path string
	var perm os.FileMode
	switch scope {
	case ScopeGlobal:
		if r.globalPath == "" {
			return ErrNoGlobalConfig
		}
		path, perm = r.globalPath, 0o600
	case ScopeLocal:
		if IsSecret(key) {
			return fmt.Errorf("%w: %s", ErrSecretInLocal, key)
		}
		if r.localPath == "" {
			return ErrNoLocalConfig
		}
		// Local config is shared with the repository.
		path, perm = r.localPath, 0o644
	default:
		return fmt.Errorf("unknown config scope %q", scope)
	}

	existing, err := readFile(path)
	if err != nil {
		return err
	}
	if existing == nil {
		existing = make(map[string]any)
	}
	if value == "" {
		delete(existing, key)
	} else {
		existing[key] = parseValue(value)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(existing)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, perm)
}

// parseValue keeps booleans and integers typed in the YAML output.
func parseValue(value string) any {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(value); err == nil && strconv.Itoa(n) == value {
		return n
	}
	return value
}
