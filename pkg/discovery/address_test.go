package discovery

import (
	"net"
	"strings"
	"testing"
)

func TestInstanceName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Kitchen Lamp", "Kitchen Lamp"},
		{"dots", "Lamp v1.2", "Lamp v1 2"},
		{"trimmed", "  Lamp  ", "Lamp"},
		{"long", strings.Repeat("a", 80), strings.Repeat("a", MaxInstanceNameLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InstanceName(tt.in); got != tt.want {
				t.Errorf("InstanceName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	t.Run("does not split runes", func(t *testing.T) {
		in := strings.Repeat("a", 62) + "é"
		got := InstanceName(in)
		if len(got) != 62 {
			t.Errorf("len = %d, want 62", len(got))
		}
	})
}

func TestSortIPsByPreference(t *testing.T) {
	t.Run("mixed addresses", func(t *testing.T) {
		ips := []net.IP{
			net.ParseIP("fe80::1"),     // Link-local IPv6
			net.ParseIP("::1"),         // Loopback
			net.ParseIP("2001:db8::1"), // Global IPv6
			net.ParseIP("fd00::1"),     // ULA IPv6
			net.ParseIP("192.168.1.1"), // IPv4 private
		}

		sorted := SortIPsByPreference(ips)
		want := []string{"192.168.1.1", "2001:db8::1", "fd00::1", "fe80::1", "::1"}
		if len(sorted) != len(want) {
			t.Fatalf("SortIPsByPreference() returned %d IPs, want %d", len(sorted), len(want))
		}
		for i, w := range want {
			if !sorted[i].Equal(net.ParseIP(w)) {
				t.Errorf("sorted[%d] = %v, want %s", i, sorted[i], w)
			}
		}
	})

	t.Run("empty slice", func(t *testing.T) {
		if sorted := SortIPsByPreference(nil); sorted != nil {
			t.Errorf("SortIPsByPreference(nil) = %v, want nil", sorted)
		}
	})

	t.Run("does not modify original", func(t *testing.T) {
		original := []net.IP{
			net.ParseIP("fe80::1"),
			net.ParseIP("10.0.0.2"),
		}
		_ = SortIPsByPreference(original)
		if !original[0].Equal(net.ParseIP("fe80::1")) {
			t.Error("SortIPsByPreference() modified original slice")
		}
	})
}

func TestIsUniqueLocal(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"fc00::1", true},
		{"fd00::1", true},
		{"fe80::1", false},
		{"2001:db8::1", false},
		{"::1", false},
		{"192.168.1.1", false},
	}

	for _, tt := range tests {
		if got := isUniqueLocal(net.ParseIP(tt.ip)); got != tt.want {
			t.Errorf("isUniqueLocal(%s) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

func TestIsGlobalUnicast(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"2001:db8::1", true},
		{"fe80::1", false},
		{"fd00::1", false},
		{"::1", false},
		{"192.168.1.1", false},
		{"10.0.0.1", false},
		{"172.16.0.1", false},
		{"8.8.8.8", true},
	}

	for _, tt := range tests {
		if got := isGlobalUnicast(net.ParseIP(tt.ip)); got != tt.want {
			t.Errorf("isGlobalUnicast(%s) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}
