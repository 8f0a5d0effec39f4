package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestResolver_Browse(t *testing.T) {
	mock := NewMockMDNSResolver()
	lamp := testTXT()
	bridge := testTXT()
	bridge.DeviceID = "AA:BB:CC:DD:EE:FF"
	bridge.Category = CategoryBridge
	bridge.StatusFlags = 0

	mock.RegisterService(ServiceHAP, MockHAPService("Lamp", 51827, net.ParseIP("192.168.1.10"), lamp))
	mock.RegisterService(ServiceHAP, MockHAPService("Bridge", 51828, net.ParseIP("192.168.1.11"), bridge))
	mock.RegisterService(ServiceHAP, MockHAPService("Lamp", 51830, net.ParseIP("192.168.1.12"), lamp))
	broken := MockHAPService("Broken", 1, net.ParseIP("192.168.1.13"), lamp)
	broken.Text = []string{"c#=oops"}
	mock.RegisterService(ServiceHAP, broken)
	mock.RegisterService("_other._tcp", MockHAPService("Other", 1, net.ParseIP("192.168.1.14"), lamp))

	r, err := NewResolver(ResolverConfig{MDNSResolver: mock})
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}

	services, err := r.Browse(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Browse() error = %v", err)
	}
	if len(services) != 2 {
		t.Fatalf("Browse() returned %d services, want 2", len(services))
	}

	if services[0].Instance != "Lamp" || services[0].Port != 51830 {
		t.Errorf("services[0] = %+v, want latest Lamp entry", services[0])
	}
	if services[0].TXT.Paired() {
		t.Error("Lamp should advertise unpaired")
	}
	if services[1].TXT.Category != CategoryBridge {
		t.Errorf("services[1] category = %v, want Bridge", services[1].TXT.Category)
	}
	if got := services[1].Address(); got != "192.168.1.11:51828" {
		t.Errorf("Address() = %q", got)
	}
}

func TestResolver_Lookup(t *testing.T) {
	mock := NewMockMDNSResolver()
	mock.RegisterService(ServiceHAP, MockHAPService("Lamp", 51827, net.ParseIP("10.0.0.5"), testTXT()))

	r, err := NewResolver(ResolverConfig{MDNSResolver: mock, LookupTimeout: time.Second})
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}

	svc, err := r.Lookup(context.Background(), "Lamp")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if svc.TXT.DeviceID != "3C:33:1B:21:B3:00" {
		t.Errorf("DeviceID = %q", svc.TXT.DeviceID)
	}

	if _, err := r.Lookup(context.Background(), "Missing"); !errors.Is(err, ErrServiceNotFound) {
		t.Errorf("Lookup(Missing) error = %v, want %v", err, ErrServiceNotFound)
	}
}

func TestAdvertiserToResolver(t *testing.T) {
	mock := NewMockMDNSResolver()
	factory := NewMockServerFactory(mock)

	adv, err := NewAdvertiser(AdvertiserConfig{
		Instance:      "Desk Fan",
		ServerFactory: factory,
	})
	if err != nil {
		t.Fatalf("NewAdvertiser() error = %v", err)
	}
	defer adv.Close()

	txt := testTXT()
	txt.Category = CategoryFan
	if err := adv.Start(txt); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	r, err := NewResolver(ResolverConfig{MDNSResolver: mock})
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}
	svc, err := r.Lookup(context.Background(), "Desk Fan")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if svc.Port != DefaultPort || svc.TXT.Category != CategoryFan {
		t.Errorf("resolved %+v", svc)
	}
}
