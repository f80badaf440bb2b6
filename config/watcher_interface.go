package config

// Watcher provides the current configuration and notifies subscribers of
// reloads.
type Watcher interface {
	GetCurrentConfig() *Config
	Subscribe() <-chan *Config
	Close() error
}
