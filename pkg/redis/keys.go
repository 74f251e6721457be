package redis

import "strings"

const defaultPrefix = "ql"

// Keyspace prefixes every key so several deployments can share one redis.
type Keyspace struct {
	prefix string
}

func NewKeyspace(prefix string) Keyspace {
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultPrefix
	}
	return Keyspace{prefix: prefix}
}

func (k Keyspace) Prefix() string {
	if k.prefix == "" {
		return defaultPrefix
	}
	return k.prefix
}

// Lock returns <prefix>:lock:<scope>[:<id>].
func (k Keyspace) Lock(scope, id string) string {
	return k.join("lock", scope, id)
}

// Throttle returns <prefix>:throttle:<parts...>.
func (k Keyspace) Throttle(parts ...string) string {
	return k.join(append([]string{"throttle"}, parts...)...)
}

func (k Keyspace) join(parts ...string) string {
	var b strings.Builder
	b.WriteString(k.Prefix())
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
