package tiledbcore

import (
	"strconv"
	"strings"
)

// Config is the string key/value configuration surface (spec §6): every
// setting is stored and retrieved as a string, with typed accessors
// layered on top and an allow-list of recognized keys.
type Config struct {
	values map[string]string
}

// configDefaults mirrors spec.md §6's recognized-key list with
// reasonable defaults. The vfs.s3.* keys are accepted and carry defaults
// so a future backend can read them, but no backend in this module
// reads them (spec §1 puts S3 out of scope).
var configDefaults = map[string]string{
	"sm.tile_cache_size":                  "10000000",
	"sm.array_metadata_cache_size":        "10000000",
	"sm.fragment_metadata_cache_size":     "10000000",
	"sm.consolidation.step_min_frags":     "2",
	"sm.consolidation.step_max_frags":     "10",
	"sm.consolidation.mode":               "fragment",
	"sm.vacuum.mode":                      "fragment",
	"sm.io_method.read":                   "posix",
	"sm.io_method.write":                  "posix",
	"vfs.s3.region":                       "",
	"vfs.s3.scheme":                       "https",
	"vfs.s3.endpoint_override":            "",
	"vfs.s3.use_virtual_addressing":       "true",
	"vfs.s3.file_buffer_size":             "5242880",
	"vfs.s3.connect_timeout_ms":           "3000",
	"vfs.s3.request_timeout_ms":           "3000",
	"sm.allow_separate_attribute_writes":  "false",
	"sm.consolidation.buffer_size":        "10000000",
	"sm.memory_budget":                    "5000000000",
	"sm.memory_budget_var":                "10000000000",
}

// NewConfig returns a Config pre-populated with spec.md §6's defaults.
func NewConfig() *Config {
	c := &Config{values: make(map[string]string, len(configDefaults))}
	for k, v := range configDefaults {
		c.values[k] = v
	}
	return c
}

// Set assigns value to key. Unrecognized keys fail with ConfigError
// (spec §6: "Unrecognized keys fail set with ConfigError").
func (c *Config) Set(key, value string) error {
	if _, ok := configDefaults[key]; !ok {
		return WrapError(ConfigError, "unrecognized config key "+key, ErrUnknownConfigKey)
	}
	c.values[key] = value
	return nil
}

// Get returns the string value of key and whether it is set.
func (c *Config) Get(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// GetInt parses key as a base-10 integer.
func (c *Config) GetInt(key string) (int64, error) {
	v, ok := c.values[key]
	if !ok {
		return 0, WrapError(ConfigError, "unrecognized config key "+key, ErrUnknownConfigKey)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, WrapError(ConfigError, "malformed integer value for "+key, err)
	}
	return n, nil
}

// GetBool parses key as a boolean ("true"/"false", case-insensitive).
func (c *Config) GetBool(key string) (bool, error) {
	v, ok := c.values[key]
	if !ok {
		return false, WrapError(ConfigError, "unrecognized config key "+key, ErrUnknownConfigKey)
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		return false, WrapError(ConfigError, "malformed boolean value for "+key, err)
	}
	return b, nil
}

// ConsolidationMode and VacuumMode share the same closed set of values
// (spec §6: `{fragment, fragment_meta, commits}`).
type ConsolidationMode string

const (
	ConsolidationFragment     ConsolidationMode = "fragment"
	ConsolidationFragmentMeta ConsolidationMode = "fragment_meta"
	ConsolidationCommits      ConsolidationMode = "commits"
)

// ConsolidationMode returns the configured sm.consolidation.mode.
func (c *Config) ConsolidationMode() ConsolidationMode {
	v, _ := c.Get("sm.consolidation.mode")
	return ConsolidationMode(v)
}

// VacuumMode returns the configured sm.vacuum.mode.
func (c *Config) VacuumMode() ConsolidationMode {
	v, _ := c.Get("sm.vacuum.mode")
	return ConsolidationMode(v)
}
