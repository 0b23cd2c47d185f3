package lib

import (
	"hallpass/src/config"
	"sync"
)

var (
	settings   = &config.Config{}
	settingsMu sync.RWMutex
)

// Configure sets the connection settings the redis, kafka and smtp clients are built from.
// It must run before the first client is requested.
func Configure(cfg *config.Config) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	settings = cfg
}

// Settings returns the config passed to Configure.
func Settings() *config.Config {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return settings
}
