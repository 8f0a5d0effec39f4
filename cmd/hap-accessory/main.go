// hap-accessory runs a HomeKit accessory pairing core over TCP.
//
// The accessory advertises itself as _hap._tcp, accepts pair-setup from
// a controller holding the setup code, and then serves pair-verify and
// pairings management. It has no characteristics of its own; non-pairing
// requests are answered with 404 once a connection is verified.
//
// Usage:
//
//	hap-accessory [options]
//
// Options:
//
//	-config    YAML configuration file
//	-port      TCP port (default: 51827)
//	-code      Setup code XXX-XX-XXX (default: random)
//	-setup-id  Four character setup ID (default: persisted or random)
//	-name      Advertised name (default: "HAP Accessory")
//	-storage   memory | <path> | keyring:<service> (default: memory)
//	-qr        Write the setup QR code PNG to this path
//	-log       error | warn | info | debug | trace (default: info)
//
// Example:
//
//	hap-accessory -name "Desk Lamp" -code 031-45-154 -storage ./lamp.cbor
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	opts, err := ParseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("Invalid arguments: %v", err)
	}

	s, err := loadSettings(opts)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := NewApp(s, os.Stdout)
	if err != nil {
		log.Fatalf("Failed to create accessory: %v", err)
	}

	// Create context that cancels on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("Accessory error: %v", err)
	}
}
