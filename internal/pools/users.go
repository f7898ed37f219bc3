package pools

import (
	"os"

	"github.com/kha1n3vol3/BitaxePID/internal/interfaces"
	"gopkg.in/yaml.v3"
)

// UserFile holds default stratum users: one global default plus per-pool
// overrides keyed by `hostname-port`.
type UserFile struct {
	Default string            `yaml:"default"`
	Pools   map[string]string `yaml:"pools"`
}

// LoadUserFile reads the credentials file. A missing or unreadable file is
// not fatal; it just contributes nothing to credential resolution.
func LoadUserFile(path string, log interfaces.ILogger) *UserFile {
	u := &UserFile{}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Debugf("no user credentials file at %s", path)
		return u
	}
	if err := yaml.Unmarshal(data, u); err != nil {
		log.Warnf("cannot parse user credentials file %s: %s", path, err)
		return &UserFile{}
	}
	return u
}

// Lookup returns the default user for an endpoint, falling back to the
// global default. Empty string when neither is set.
func (u *UserFile) Lookup(e Endpoint) string {
	if u == nil {
		return ""
	}
	if user, ok := u.Pools[e.Key()]; ok && user != "" {
		return user
	}
	return u.Default
}
