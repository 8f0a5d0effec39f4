package discovery

import (
	"fmt"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// DefaultPort is the default HAP port.
const DefaultPort = 51827

// MDNSServer is the interface for a live mDNS service registration.
// This allows for dependency injection in tests.
type MDNSServer interface {
	// SetText replaces the TXT record and announces the change.
	SetText(txt []string)

	// Shutdown stops the server.
	Shutdown()
}

// MDNSServerFactory creates MDNSServer instances.
type MDNSServerFactory interface {
	// Register creates a new mDNS server for the given service.
	Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error)
}

// zeroconfServerFactory is the production implementation using grandcat/zeroconf.
type zeroconfServerFactory struct{}

func (z *zeroconfServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// AdvertiserConfig holds configuration for the Advertiser.
type AdvertiserConfig struct {
	// Instance is the DNS-SD instance name, normally the accessory name.
	Instance string

	// Port is the HAP port to advertise (default: 51827).
	Port int

	// Interfaces specifies which network interfaces to advertise on.
	// If nil, all interfaces are used.
	Interfaces []net.Interface

	// ServerFactory is the factory for creating mDNS servers.
	// If nil, the default zeroconf factory is used.
	ServerFactory MDNSServerFactory

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// Advertiser publishes the _hap._tcp service of one accessory.
type Advertiser struct {
	config  AdvertiserConfig
	factory MDNSServerFactory
	log     logging.LeveledLogger

	mu     sync.RWMutex
	server MDNSServer
	txt    TXT
	closed bool
}

// NewAdvertiser creates a new Advertiser with the given configuration.
func NewAdvertiser(config AdvertiserConfig) (*Advertiser, error) {
	config.Instance = InstanceName(config.Instance)
	if config.Instance == "" {
		return nil, ErrInvalidInstanceName
	}
	if config.Port <= 0 || config.Port > 65535 {
		config.Port = DefaultPort
	}

	factory := config.ServerFactory
	if factory == nil {
		factory = &zeroconfServerFactory{}
	}

	a := &Advertiser{
		config:  config,
		factory: factory,
	}

	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("discovery")
	}

	return a, nil
}

// Start begins advertising the accessory with the given TXT record.
func (a *Advertiser) Start(txt TXT) error {
	if err := txt.Validate(); err != nil {
		return fmt.Errorf("advertiser: txt validation failed: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.server != nil {
		return ErrAlreadyStarted
	}

	records := txt.Encode()
	if a.log != nil {
		a.log.Debugf("Registering mDNS service: instance=%q service=%s domain=%s port=%d",
			a.config.Instance, ServiceHAP, DefaultDomain, a.config.Port)
		a.log.Tracef("TXT records: %v", records)
	}

	server, err := a.factory.Register(
		a.config.Instance,
		ServiceHAP,
		DefaultDomain,
		a.config.Port,
		records,
		a.config.Interfaces,
	)
	if err != nil {
		return fmt.Errorf("advertiser: mDNS registration failed for %s: %w", ServiceHAP, err)
	}

	if a.log != nil {
		a.log.Infof("Advertising %q on %s port %d (sf=%d)", a.config.Instance, ServiceHAP, a.config.Port, txt.StatusFlags)
	}

	a.server = server
	a.txt = txt
	return nil
}

// UpdateStatus changes the advertised status flags on the live registration.
func (a *Advertiser) UpdateStatus(sf StatusFlag) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.server == nil {
		return ErrNotStarted
	}
	if a.txt.StatusFlags == sf {
		return nil
	}

	a.txt.StatusFlags = sf
	a.server.SetText(a.txt.Encode())

	if a.log != nil {
		a.log.Debugf("Status flags now %s", sf)
	}
	return nil
}

// Update replaces the whole TXT record on the live registration.
func (a *Advertiser) Update(txt TXT) error {
	if err := txt.Validate(); err != nil {
		return fmt.Errorf("advertiser: txt validation failed: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.server == nil {
		return ErrNotStarted
	}

	a.txt = txt
	a.server.SetText(txt.Encode())
	return nil
}

// TXT returns the currently advertised record.
func (a *Advertiser) TXT() (TXT, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.txt, a.server != nil
}

// Stop withdraws the advertisement. It may be started again.
func (a *Advertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.server == nil {
		return ErrNotStarted
	}

	a.server.Shutdown()
	a.server = nil
	a.txt = TXT{}

	if a.log != nil {
		a.log.Infof("Stopped advertising %q", a.config.Instance)
	}
	return nil
}

// Close stops the advertisement and closes the advertiser.
func (a *Advertiser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	a.closed = true

	return nil
}

// IsAdvertising returns true while the service is registered.
func (a *Advertiser) IsAdvertising() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.server != nil
}

// Instance returns the advertised instance name.
func (a *Advertiser) Instance() string {
	return a.config.Instance
}

// Port returns the advertised port.
func (a *Advertiser) Port() int {
	return a.config.Port
}
