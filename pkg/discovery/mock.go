package discovery

import (
	"context"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
)

// MockServer is an in-memory MDNSServer that records TXT updates.
type MockServer struct {
	mu       sync.Mutex
	instance string
	port     int
	txt      []string
	updates  int
	shutdown bool
}

// SetText implements MDNSServer.
func (s *MockServer) SetText(txt []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txt = append([]string(nil), txt...)
	s.updates++
}

// Shutdown implements MDNSServer.
func (s *MockServer) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
}

// Text returns the current TXT record.
func (s *MockServer) Text() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.txt...)
}

// TXT returns the current TXT record parsed.
func (s *MockServer) TXT() TXT {
	txt, _ := ParseTXT(s.Text())
	if txt == nil {
		return TXT{}
	}
	return *txt
}

// Updates returns how many times SetText was called.
func (s *MockServer) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

// IsShutdown reports whether Shutdown was called.
func (s *MockServer) IsShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// Instance returns the registered instance name.
func (s *MockServer) Instance() string {
	return s.instance
}

// Port returns the registered port.
func (s *MockServer) Port() int {
	return s.port
}

// MockServerFactory is an MDNSServerFactory for tests without real
// network I/O. Optionally it feeds registrations into a MockMDNSResolver
// so a Resolver can find them.
type MockServerFactory struct {
	mu       sync.Mutex
	servers  []*MockServer
	fail     error
	resolver *MockMDNSResolver
}

// NewMockServerFactory creates a new mock factory. If resolver is not nil,
// every registration is also made resolvable through it.
func NewMockServerFactory(resolver *MockMDNSResolver) *MockServerFactory {
	return &MockServerFactory{resolver: resolver}
}

// FailWith makes subsequent Register calls return err. Pass nil to clear.
func (f *MockServerFactory) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

// Register implements MDNSServerFactory.
func (f *MockServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail != nil {
		return nil, f.fail
	}

	server := &MockServer{
		instance: instance,
		port:     port,
		txt:      append([]string(nil), txt...),
	}
	f.servers = append(f.servers, server)

	if f.resolver != nil {
		f.resolver.RegisterService(service, &zeroconf.ServiceEntry{
			ServiceRecord: zeroconf.ServiceRecord{
				Instance: instance,
				Service:  service,
				Domain:   domain,
			},
			HostName: "mock.local.",
			Port:     port,
			AddrIPv4: []net.IP{net.IPv4(127, 0, 0, 1)},
			Text:     server.txt,
		})
	}

	return server, nil
}

// Last returns the most recently registered server, or nil.
func (f *MockServerFactory) Last() *MockServer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.servers) == 0 {
		return nil
	}
	return f.servers[len(f.servers)-1]
}

// Count returns the number of registrations.
func (f *MockServerFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.servers)
}

// MockMDNSResolver provides a mock mDNS resolver for testing without real network I/O.
// It allows registering services and simulating discovery responses.
type MockMDNSResolver struct {
	mu       sync.RWMutex
	services map[string][]*zeroconf.ServiceEntry
}

// NewMockMDNSResolver creates a new mock resolver.
func NewMockMDNSResolver() *MockMDNSResolver {
	return &MockMDNSResolver{
		services: make(map[string][]*zeroconf.ServiceEntry),
	}
}

// RegisterService registers a service that will be returned by Browse/Lookup.
func (m *MockMDNSResolver) RegisterService(service string, entry *zeroconf.ServiceEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[service] = append(m.services[service], entry)
}

// ClearServices removes all registered services.
func (m *MockMDNSResolver) ClearServices() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = make(map[string][]*zeroconf.ServiceEntry)
}

// Browse implements MDNSResolver.
func (m *MockMDNSResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	m.mu.RLock()
	svcEntries := make([]*zeroconf.ServiceEntry, len(m.services[service]))
	copy(svcEntries, m.services[service])
	m.mu.RUnlock()

	// Send entries synchronously to avoid races with channel closing.
	for _, entry := range svcEntries {
		select {
		case entries <- entry:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// Lookup implements MDNSResolver.
func (m *MockMDNSResolver) Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	m.mu.RLock()
	svcEntries := make([]*zeroconf.ServiceEntry, len(m.services[service]))
	copy(svcEntries, m.services[service])
	m.mu.RUnlock()

	for _, entry := range svcEntries {
		if entry.Instance == instance {
			select {
			case entries <- entry:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		}
	}

	return nil
}

// MockHAPService creates a mock _hap._tcp service entry for testing.
func MockHAPService(instance string, port int, ip net.IP, txt TXT) *zeroconf.ServiceEntry {
	return &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{
			Instance: instance,
			Service:  ServiceHAP,
			Domain:   DefaultDomain,
		},
		HostName: instance + ".local.",
		Port:     port,
		AddrIPv4: []net.IP{ip},
		Text:     txt.Encode(),
	}
}
