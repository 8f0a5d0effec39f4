package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/backkem/hap/pkg/accessory"
	"github.com/backkem/hap/pkg/discovery"
	"github.com/backkem/hap/pkg/storage"
	"github.com/backkem/hap/pkg/transport"
	"github.com/pion/logging"
	"github.com/skip2/go-qrcode"
)

// settings is the merged result of the config file and the flags.
type settings struct {
	config   accessory.Config
	storage  string
	logLevel string
	qrPath   string
}

// loadSettings reads the config file, if any, and applies the flags on
// top. A missing setup code is generated.
func loadSettings(opts Options) (settings, error) {
	s := settings{
		storage:  opts.Storage,
		logLevel: opts.LogLevel,
		qrPath:   opts.QRPath,
	}

	if opts.ConfigPath != "" {
		fc, err := accessory.LoadConfigFile(opts.ConfigPath)
		if err != nil {
			return settings{}, err
		}
		s.config = fc.Config()
		if fc.Storage != "" && !opts.isSet("storage") {
			s.storage = fc.Storage
		}
		if fc.LogLevel != "" && !opts.isSet("log") {
			s.logLevel = fc.LogLevel
		}
	}

	if opts.isSet("name") || s.config.Name == "" {
		s.config.Name = opts.Name
	}
	if opts.isSet("port") {
		s.config.Port = opts.Port
	}
	if opts.isSet("code") {
		s.config.SetupCode = opts.SetupCode
	}
	if opts.isSet("setup-id") {
		s.config.SetupID = opts.SetupID
	}

	if s.config.SetupCode == "" {
		code, err := accessory.GenerateSetupCode(nil)
		if err != nil {
			return settings{}, err
		}
		s.config.SetupCode = code
	}
	if _, err := parseLogLevel(s.logLevel); err != nil {
		return settings{}, err
	}
	return s, nil
}

// openStore opens a blob store: "memory", "keyring:<service>", or a file path.
func openStore(name string) (storage.BlobStore, error) {
	switch {
	case name == "" || name == "memory":
		return storage.NewMemoryStore(), nil
	case strings.HasPrefix(name, "keyring:"):
		service := strings.TrimPrefix(name, "keyring:")
		if service == "" {
			return nil, errors.New("keyring storage needs a service name")
		}
		return storage.NewKeyringStore(service), nil
	default:
		return storage.OpenFileStore(name)
	}
}

func newLoggerFactory(level string) *logging.DefaultLoggerFactory {
	lvl, _ := parseLogLevel(level)
	f := logging.NewDefaultLoggerFactory()
	f.DefaultLogLevel = lvl
	return f
}

// App is an accessory served over TCP.
type App struct {
	acc    *accessory.Accessory
	srv    *transport.Server
	qrPath string
	out    io.Writer
	log    logging.LeveledLogger
}

// NewApp creates the accessory and its server. Nothing is started.
func NewApp(s settings, out io.Writer) (*App, error) {
	store, err := openStore(s.storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	lf := newLoggerFactory(s.logLevel)
	log := lf.NewLogger("main")

	config := s.config
	config.Store = store
	config.LoggerFactory = lf
	config.OnPaired = func(paired bool) {
		if paired {
			log.Info("accessory paired")
		} else {
			log.Info("accessory unpaired")
		}
	}
	config.OnStateChanged = func(state accessory.State) {
		log.Infof("state changed: %s", state)
	}

	acc, err := accessory.New(config)
	if err != nil {
		return nil, fmt.Errorf("create accessory: %w", err)
	}

	srv, err := transport.NewServer(transport.Config{
		ListenAddr:    fmt.Sprintf(":%d", acc.Port()),
		Accessory:     acc,
		LoggerFactory: lf,
	})
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	return &App{acc: acc, srv: srv, qrPath: s.qrPath, out: out, log: log}, nil
}

// Run starts serving and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if err := a.acc.Start(ctx); err != nil {
		_ = a.srv.Stop()
		return fmt.Errorf("start accessory: %w", err)
	}

	printOnboardingInfo(a.out, a.acc)
	if a.qrPath != "" {
		if err := a.writeQRCode(); err != nil {
			a.log.Warnf("write QR code: %v", err)
		}
	}

	<-ctx.Done()

	a.log.Info("shutting down")
	var errs []error
	if err := a.acc.Stop(); err != nil && !errors.Is(err, accessory.ErrAlreadyStopped) {
		errs = append(errs, err)
	}
	if err := a.srv.Stop(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) writeQRCode() error {
	png, err := a.acc.SetupQRCode(accessory.DefaultQRSize)
	if err != nil {
		return err
	}
	if err := os.WriteFile(a.qrPath, png, 0o644); err != nil {
		return err
	}
	a.log.Infof("setup QR code written to %s", a.qrPath)
	return nil
}

// printOnboardingInfo prints pairing information to out.
func printOnboardingInfo(out io.Writer, acc *accessory.Accessory) {
	info := acc.GetSetupInfo()

	fmt.Fprintln(out, "\n========================================")
	fmt.Fprintln(out, "          HomeKit Accessory Ready")
	fmt.Fprintln(out, "========================================")
	fmt.Fprintf(out, "Name:           %s\n", info.Name)
	fmt.Fprintf(out, "Category:       %s\n", info.Category)
	fmt.Fprintf(out, "Device ID:      %s\n", info.DeviceID)
	fmt.Fprintf(out, "Port:           %d\n", info.Port)
	if addrs, err := discovery.GetLocalAddresses(); err == nil {
		for _, ip := range addrs {
			fmt.Fprintf(out, "Address:        %s\n", net.JoinHostPort(ip.String(), strconv.Itoa(info.Port)))
		}
	}
	fmt.Fprintf(out, "Paired:         %v\n", acc.IsPaired())
	fmt.Fprintln(out, "----------------------------------------")
	fmt.Fprintf(out, "Setup Code:     %s\n", info.SetupCode)
	fmt.Fprintf(out, "Setup URI:      %s\n", info.SetupURI)
	fmt.Fprintln(out, "========================================")

	if !acc.IsPaired() {
		if q, err := qrcode.New(info.SetupURI, qrcode.Medium); err == nil {
			fmt.Fprintln(out, q.ToSmallString(false))
		}
	}
}
