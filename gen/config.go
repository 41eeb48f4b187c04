package gen

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigFile is the name LoadDir looks for.
const ConfigFile = "typeuuid.yaml"

const (
	DefaultOutput  = "typeuuid_gen.go"
	DefaultRuntime = "xdao.co/typeuuid/typeuuid"
	DefaultLock    = "typeuuid.lock"
)

// Form selects how generic declarations are emitted.
type Form string

const (
	// FormAuto emits methods for named types and functions for type
	// expressions.
	FormAuto Form = "auto"
	// FormMethod forces methods. Type expressions cannot carry methods and
	// are rejected.
	FormMethod Form = "method"
	// FormFunc emits NameTypeUUID[...]() functions for every generic
	// declaration.
	FormFunc Form = "func"
)

// Config is the per-package generator configuration.
//
// Example typeuuid.yaml:
//
//	output: typeuuid_gen.go
//	lock: typeuuid.lock
//	archive: .typeuuid/cas
//	package: example.com/shapes
//	impls:
//	  - decl: 'Slice[T], "6f9a2c1e-3b4d-4e5f-8a9b-0c1d2e3f4a5b"'
//	    type: "[]T"
type Config struct {
	// Output is the generated file name, relative to the package directory.
	Output string `yaml:"output,omitempty"`
	// Runtime is the import path of the runtime package.
	Runtime string `yaml:"runtime,omitempty"`
	// Lock is the manifest path. "-" disables the lock.
	Lock string `yaml:"lock,omitempty"`
	// Archive is an optional localfs CAS directory the lock is stored in.
	Archive string `yaml:"archive,omitempty"`
	// Package is the import path recorded in the manifest. Defaults to the
	// Go package name.
	Package     string       `yaml:"package,omitempty"`
	Form        Form         `yaml:"form,omitempty"`
	Concurrency int          `yaml:"concurrency,omitempty"`
	Impls       []ImplConfig `yaml:"impls,omitempty"`
}

// ImplConfig attaches an identity to a type expression. Decl uses the
// one-line `Name[T, ...], "uuid"` form; Type is the expression the
// parameters appear in. Without Type the declaration names a type of the
// package.
type ImplConfig struct {
	Decl string `yaml:"decl"`
	Type string `yaml:"type,omitempty"`
}

// LoadFile reads and validates a YAML config. Defaults are applied.
func LoadFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("gen: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("gen: %s: %w", filepath.Base(path), err)
	}
	cfg = cfg.WithDefaults()
	return cfg, cfg.Validate()
}

// LoadDir loads dir/typeuuid.yaml if present, and the defaults otherwise.
func LoadDir(dir string) (Config, error) {
	path := filepath.Join(dir, ConfigFile)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Config{}.WithDefaults(), nil
		}
		return Config{}, err
	}
	return LoadFile(path)
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.Output == "" {
		c.Output = DefaultOutput
	}
	if c.Runtime == "" {
		c.Runtime = DefaultRuntime
	}
	if c.Lock == "" {
		c.Lock = DefaultLock
	}
	if c.Form == "" {
		c.Form = FormAuto
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	return c
}

func (c Config) Validate() error {
	if c.Output == "" || filepath.Base(c.Output) != c.Output || !strings.HasSuffix(c.Output, ".go") {
		return fmt.Errorf("gen: output %q must be a .go file name in the package directory", c.Output)
	}
	if strings.HasSuffix(c.Output, "_test.go") {
		return fmt.Errorf("gen: output %q must not be a test file", c.Output)
	}
	if c.Runtime == "" || strings.ContainsAny(c.Runtime, " \t\"") {
		return fmt.Errorf("gen: invalid runtime import path %q", c.Runtime)
	}
	switch c.Form {
	case "", FormAuto, FormMethod, FormFunc:
	default:
		return fmt.Errorf("gen: invalid form %q", c.Form)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("gen: invalid concurrency %d", c.Concurrency)
	}
	for i, impl := range c.Impls {
		if strings.TrimSpace(impl.Decl) == "" {
			return fmt.Errorf("gen: impls[%d]: decl is required", i)
		}
	}
	if c.Form == FormMethod {
		for i, impl := range c.Impls {
			if impl.Type != "" {
				return fmt.Errorf("gen: impls[%d]: type expressions cannot carry methods (form: method)", i)
			}
		}
	}
	return nil
}

// LockEnabled reports whether a lock manifest is read and written.
func (c Config) LockEnabled() bool { return c.Lock != "-" }
