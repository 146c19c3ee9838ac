package config

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, console
	Output     string          `yaml:"output"` // stderr, stdout or a file path
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// IsCategoryEnabled returns whether a logging category is enabled.
// Unlisted categories are enabled.
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if c.Categories == nil {
		return true
	}
	enabled, ok := c.Categories[category]
	if !ok {
		return true
	}
	return enabled
}
