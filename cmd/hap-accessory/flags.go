package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/pion/logging"
)

// Options holds the command-line flags.
type Options struct {
	// ConfigPath is an optional YAML file. Flags set on the command line
	// override its values.
	ConfigPath string

	Port      int
	SetupCode string
	SetupID   string
	Name      string

	// Storage is "memory", a file path, or "keyring:<service>".
	Storage string

	// QRPath, if set, receives the setup QR code as a PNG.
	QRPath string

	// LogLevel is one of error, warn, info, debug, trace.
	LogLevel string

	set map[string]bool
}

// DefaultOptions returns Options with the defaults used when neither a
// flag nor the config file sets a value.
func DefaultOptions() Options {
	return Options{
		Name:     "HAP Accessory",
		Storage:  "memory",
		LogLevel: "info",
	}
}

// ParseFlags parses args (without the program name).
//
//	-config    YAML configuration file
//	-port      TCP port (default: 51827)
//	-code      Setup code XXX-XX-XXX (default: random)
//	-setup-id  Four character setup ID (default: persisted or random)
//	-name      Advertised name (default: "HAP Accessory")
//	-storage   memory | <path> | keyring:<service> (default: memory)
//	-qr        Write the setup QR code PNG to this path
//	-log       error | warn | info | debug | trace (default: info)
func ParseFlags(args []string, output io.Writer) (Options, error) {
	defaults := DefaultOptions()
	o := Options{}

	fs := flag.NewFlagSet("hap-accessory", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&o.ConfigPath, "config", "", "YAML configuration file")
	fs.IntVar(&o.Port, "port", 0, "TCP port (default: 51827)")
	fs.StringVar(&o.SetupCode, "code", "", "Setup code XXX-XX-XXX (default: random)")
	fs.StringVar(&o.SetupID, "setup-id", "", "Four character setup ID (default: persisted or random)")
	fs.StringVar(&o.Name, "name", defaults.Name, "Advertised accessory name")
	fs.StringVar(&o.Storage, "storage", defaults.Storage, "memory | <path> | keyring:<service>")
	fs.StringVar(&o.QRPath, "qr", "", "Write the setup QR code PNG to this path")
	fs.StringVar(&o.LogLevel, "log", defaults.LogLevel, "error | warn | info | debug | trace")

	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}
	if fs.NArg() > 0 {
		return Options{}, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	if o.Port < 0 || o.Port > 65535 {
		return Options{}, fmt.Errorf("port must be 0-65535, got %d", o.Port)
	}
	if _, err := parseLogLevel(o.LogLevel); err != nil {
		return Options{}, err
	}

	o.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		o.set[f.Name] = true
	})
	return o, nil
}

// isSet reports whether a flag was given explicitly.
func (o Options) isSet(name string) bool {
	return o.set[name]
}

func parseLogLevel(s string) (logging.LogLevel, error) {
	switch strings.ToLower(s) {
	case "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "info", "":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	default:
		return logging.LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
