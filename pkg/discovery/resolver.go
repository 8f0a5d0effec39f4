package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// DefaultBrowseTimeout is the default timeout for browse operations.
const DefaultBrowseTimeout = 10 * time.Second

// DefaultLookupTimeout is the default timeout for lookup operations.
const DefaultLookupTimeout = 5 * time.Second

// Service is a resolved _hap._tcp accessory.
type Service struct {
	// Instance is the DNS-SD instance name.
	Instance string

	// Host is the target host name.
	Host string

	// Port is the HAP port.
	Port int

	// Addrs contains the resolved IP addresses, sorted by preference.
	Addrs []net.IP

	// TXT is the parsed TXT record.
	TXT TXT
}

// Address returns host:port for the preferred address, or "" if none
// was resolved.
func (s *Service) Address() string {
	if len(s.Addrs) == 0 {
		return ""
	}
	return net.JoinHostPort(s.Addrs[0].String(), fmt.Sprint(s.Port))
}

// MDNSResolver is the interface for mDNS service resolution.
// Implementations send entries until ctx is done or no more are expected,
// then return. They never close entries.
type MDNSResolver interface {
	// Browse browses for services of the given type.
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

	// Lookup looks up a specific service instance.
	Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// zeroconfResolver is the production implementation using grandcat/zeroconf.
// zeroconf owns and closes the channel it is given, so results are
// forwarded from a private channel.
type zeroconfResolver struct {
	resolver *zeroconf.Resolver
}

func newZeroconfResolver() (*zeroconfResolver, error) {
	r, err := zeroconf.NewResolver()
	if err != nil {
		return nil, err
	}
	return &zeroconfResolver{resolver: r}, nil
}

func (z *zeroconfResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	found := make(chan *zeroconf.ServiceEntry, 16)
	if err := z.resolver.Browse(ctx, service, domain, found); err != nil {
		return err
	}
	forward(ctx, found, entries)
	return nil
}

func (z *zeroconfResolver) Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	found := make(chan *zeroconf.ServiceEntry, 16)
	if err := z.resolver.Lookup(ctx, instance, service, domain, found); err != nil {
		return err
	}
	forward(ctx, found, entries)
	return nil
}

// forward copies entries from in to out until in is closed or ctx is done.
// Whatever zeroconf still sends after that is drained in the background.
func forward(ctx context.Context, in <-chan *zeroconf.ServiceEntry, out chan<- *zeroconf.ServiceEntry) {
	defer func() {
		go func() {
			for range in {
			}
		}()
	}()
	for {
		select {
		case entry, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- entry:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// ResolverConfig holds configuration for the Resolver.
type ResolverConfig struct {
	// MDNSResolver is the underlying mDNS resolver implementation.
	// If nil, the default zeroconf resolver is used.
	MDNSResolver MDNSResolver

	// BrowseTimeout is used by Browse when called with a zero timeout
	// and a context without deadline. If zero, DefaultBrowseTimeout is used.
	BrowseTimeout time.Duration

	// LookupTimeout is the timeout for lookup operations.
	// If zero, DefaultLookupTimeout is used.
	LookupTimeout time.Duration

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// Resolver discovers HomeKit accessories via DNS-SD.
type Resolver struct {
	config   ResolverConfig
	resolver MDNSResolver
	log      logging.LeveledLogger
}

// NewResolver creates a new Resolver with the given configuration.
func NewResolver(config ResolverConfig) (*Resolver, error) {
	resolver := config.MDNSResolver
	if resolver == nil {
		zr, err := newZeroconfResolver()
		if err != nil {
			return nil, err
		}
		resolver = zr
	}

	if config.BrowseTimeout == 0 {
		config.BrowseTimeout = DefaultBrowseTimeout
	}
	if config.LookupTimeout == 0 {
		config.LookupTimeout = DefaultLookupTimeout
	}

	r := &Resolver{
		config:   config,
		resolver: resolver,
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("discovery")
	}
	return r, nil
}

// Browse collects the _hap._tcp accessories seen within timeout. A zero
// timeout uses the context deadline, or BrowseTimeout if there is none.
// Entries with an unparseable TXT record are skipped; duplicates of an
// instance keep the latest entry.
func (r *Resolver) Browse(ctx context.Context, timeout time.Duration) ([]Service, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	} else if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.BrowseTimeout)
		defer cancel()
	}

	entries := make(chan *zeroconf.ServiceEntry)
	errc := make(chan error, 1)
	go func() {
		defer close(entries)
		errc <- r.resolver.Browse(ctx, ServiceHAP, DefaultDomain, entries)
	}()

	var (
		services []Service
		index    = make(map[string]int)
	)
	for entry := range entries {
		svc, err := entryToService(entry)
		if err != nil {
			if r.log != nil {
				r.log.Debugf("Skipping %q: %v", entry.Instance, err)
			}
			continue
		}
		if i, ok := index[svc.Instance]; ok {
			services[i] = svc
			continue
		}
		index[svc.Instance] = len(services)
		services = append(services, svc)
	}

	if err := <-errc; err != nil {
		return services, fmt.Errorf("discovery: browse: %w", err)
	}
	return services, nil
}

// Lookup resolves a single accessory by instance name.
func (r *Resolver) Lookup(ctx context.Context, instance string) (*Service, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.LookupTimeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		defer close(entries)
		if err := r.resolver.Lookup(ctx, instance, ServiceHAP, DefaultDomain, entries); err != nil && r.log != nil {
			r.log.Warnf("Lookup %q failed: %v", instance, err)
		}
	}()

	select {
	case entry, ok := <-entries:
		if !ok {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrTimeout
			}
			return nil, ErrServiceNotFound
		}
		svc, err := entryToService(entry)
		if err != nil {
			return nil, err
		}
		return &svc, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

// entryToService converts a zeroconf.ServiceEntry to Service.
func entryToService(entry *zeroconf.ServiceEntry) (Service, error) {
	txt, err := ParseTXT(entry.Text)
	if err != nil {
		return Service{}, err
	}

	var addrs []net.IP
	addrs = append(addrs, entry.AddrIPv4...)
	addrs = append(addrs, entry.AddrIPv6...)

	return Service{
		Instance: entry.Instance,
		Host:     entry.HostName,
		Port:     entry.Port,
		Addrs:    SortIPsByPreference(addrs),
		TXT:      *txt,
	}, nil
}
