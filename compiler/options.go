package compiler

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Options configure a compilation.
type Options struct {
	// PointerSize is the size in bytes of a reference slot.
	PointerSize int `yaml:"pointer_size"`

	// FunctionName names the compiled function when the graph has no name.
	FunctionName string `yaml:"function_name"`

	LogLevel string `yaml:"log_level"`

	// DiagnosticsFatal makes Compile fail with ErrDiagnostics when the
	// program has messages. Otherwise such programs are analyzed but not
	// lowered, and the messages are only in the result.
	DiagnosticsFatal bool `yaml:"diagnostics_fatal"`
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		PointerSize:      4,
		FunctionName:     "main",
		LogLevel:         "warn",
		DiagnosticsFatal: true,
	}
}

// LoadOptions reads YAML options from path over the defaults.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	f, err := os.Open(path)
	if err != nil {
		return opts, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && err != io.EOF {
		return opts, errors.Wrapf(err, "options %s", path)
	}
	return opts, opts.validate()
}

func (o Options) validate() error {
	switch o.PointerSize {
	case 4, 8:
	default:
		return errors.Errorf("pointer_size %d: want 4 or 8", o.PointerSize)
	}
	if o.FunctionName == "" {
		return errors.New("function_name is empty")
	}
	return nil
}
