package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

// Validate checks the configuration for fatal inconsistencies. It assumes
// Normalize already ran.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.DBPath) == "" {
		problems = append(problems, "db-path is required")
	} else if info, err := os.Stat(c.DBPath); err != nil {
		problems = append(problems, fmt.Sprintf("db-path %s: %v", c.DBPath, err))
	} else if !info.IsDir() {
		problems = append(problems, fmt.Sprintf("db-path %s is not a directory", c.DBPath))
	}

	if c.DiscoveryPort <= 0 || c.DiscoveryPort > 65535 {
		problems = append(problems, fmt.Sprintf("discovery port %d out of range", c.DiscoveryPort))
	}
	if c.Redis.Port <= 0 {
		problems = append(problems, "redis port must be positive")
	}
	if c.RedisData.Port <= 0 {
		problems = append(problems, "redis data port must be positive")
	}
	if c.Redis.Port == c.RedisData.Port {
		problems = append(problems, "redis and redis-data ports must differ")
	}

	if c.LogServer.ViewerPort > 0 && c.LogServer.Port == 0 {
		problems = append(problems, "log-viewer-port requires log-server-port")
	}

	for _, filter := range c.Filters {
		if _, err := ParseFilter(filter); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

// FilterRule is one ordered discovery address rule.
type FilterRule struct {
	Allow   bool
	Network *net.IPNet
}

// ParseFilter converts a filter flag value into a rule. The value is a CIDR
// or bare IP, optionally prefixed with "allow:" or "deny:"; a bare value
// allows. Bare addresses get a host mask.
func ParseFilter(value string) (FilterRule, error) {
	rule := FilterRule{Allow: true}
	trimmed := strings.TrimSpace(value)
	switch {
	case strings.HasPrefix(trimmed, "allow:"):
		trimmed = strings.TrimPrefix(trimmed, "allow:")
	case strings.HasPrefix(trimmed, "deny:"):
		rule.Allow = false
		trimmed = strings.TrimPrefix(trimmed, "deny:")
	}
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return rule, errors.New("empty address filter")
	}
	if !strings.Contains(trimmed, "/") {
		ip := net.ParseIP(trimmed)
		if ip == nil {
			return rule, fmt.Errorf("address filter %q is not an IP or CIDR", value)
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		rule.Network = &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}
		return rule, nil
	}
	_, network, err := net.ParseCIDR(trimmed)
	if err != nil {
		return rule, fmt.Errorf("address filter %q: %w", value, err)
	}
	rule.Network = network
	return rule, nil
}

// ParseFilters converts the configured filter strings into ordered rules.
func ParseFilters(values []string) ([]FilterRule, error) {
	rules := make([]FilterRule, 0, len(values))
	for _, value := range values {
		rule, err := ParseFilter(value)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
