package config

import (
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// RoutingPolicy controls how inbound hosts are resolved and redirected.
type RoutingPolicy struct {
	// NoPrimaryDomain allows a tenant to be served from any of its mapped
	// domains without a forced redirect to the primary one.
	NoPrimaryDomain bool `mapstructure:"noPrimaryDomain"`
	// PermanentRedirect switches canonical-host redirects from 302 to 301.
	PermanentRedirect bool `mapstructure:"permanentRedirect"`
	// AdminUsesNativeHost forces back-office traffic onto the tenant's
	// native host regardless of mapped-domain state.
	AdminUsesNativeHost bool `mapstructure:"adminUsesNativeHost"`
}

func DefaultRoutingPolicy() RoutingPolicy {
	return RoutingPolicy{
		NoPrimaryDomain:     false,
		PermanentRedirect:   false,
		AdminUsesNativeHost: true,
	}
}

// RoutingPolicyHolder exposes the current policy and hot-reloads it when the
// config file changes on disk.
type RoutingPolicyHolder struct {
	current atomic.Value // holds RoutingPolicy
}

func NewRoutingPolicyHolder() (*RoutingPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("routing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/domainlink/config")
	v.AddConfigPath("/etc/domainlink")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DOMAINLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultRoutingPolicy()
	v.SetDefault("routing.noPrimaryDomain", defaults.NoPrimaryDomain)
	v.SetDefault("routing.permanentRedirect", defaults.PermanentRedirect)
	v.SetDefault("routing.adminUsesNativeHost", defaults.AdminUsesNativeHost)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var policy RoutingPolicy
	if err := v.UnmarshalKey("routing", &policy); err != nil {
		return nil, err
	}

	holder := &RoutingPolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated RoutingPolicy
		if err := v.UnmarshalKey("routing", &updated); err != nil {
			log.Printf("[routing-policy] reload failed: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[routing-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticRoutingPolicyHolder returns a holder pinned to the given policy.
// Used by tests and callers that do not want file-backed configuration.
func NewStaticRoutingPolicyHolder(policy RoutingPolicy) *RoutingPolicyHolder {
	holder := &RoutingPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *RoutingPolicyHolder) Get() RoutingPolicy {
	return h.current.Load().(RoutingPolicy)
}

// Set replaces the current policy. Intended for tests.
func (h *RoutingPolicyHolder) Set(policy RoutingPolicy) {
	h.current.Store(policy)
}
