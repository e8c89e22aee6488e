package vos

import (
	"sort"
	"strings"
	"sync"
)

// VEnv is the environment of a process.
type VEnv interface {
	// LookupEnv returns the value of key and whether it is set at all.
	LookupEnv(key string) (string, bool)

	// Getenv returns the value of key, or "" if it isn't set.
	Getenv(key string) string

	Setenv(key, value string) error
	Unsetenv(key string) error

	// Environ returns the variables as sorted "key=value" strings.
	Environ() []string
}

// EnvironFetcher is anything with an environment to copy from.
type EnvironFetcher interface {
	Environ() []string
}

// CopyEnv sets every variable of src in dst. Entries without "=" are set to
// the empty string.
func CopyEnv(dst VEnv, src EnvironFetcher) error {
	for _, kv := range src.Environ() {
		key, value, _ := strings.Cut(kv, "=")
		if err := dst.Setenv(key, value); err != nil {
			return err
		}
	}
	return nil
}

type envList []string

func (e envList) Environ() []string { return e }

// MapEnv is an in-memory VEnv safe for concurrent use. The zero value is an
// empty environment.
type MapEnv struct {
	mu   sync.RWMutex
	vars map[string]string
}

var _ VEnv = (*MapEnv)(nil)

// NewMapEnv creates an empty environment.
func NewMapEnv() *MapEnv {
	return &MapEnv{}
}

// NewMapEnvFromEnvList creates an environment from "key=value" pairs. Later
// duplicates win.
func NewMapEnvFromEnvList(environ []string) *MapEnv {
	out := &MapEnv{}
	_ = CopyEnv(out, envList(environ))
	return out
}

func (m *MapEnv) LookupEnv(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vars[key]
	return v, ok
}

func (m *MapEnv) Getenv(key string) string {
	v, _ := m.LookupEnv(key)
	return v
}

func (m *MapEnv) Setenv(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vars == nil {
		m.vars = make(map[string]string)
	}
	m.vars[key] = value
	return nil
}

func (m *MapEnv) Unsetenv(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vars, key)
	return nil
}

func (m *MapEnv) Environ() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.vars))
	for k, v := range m.vars {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
