package discovery

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// TXT record keys of the _hap._tcp service.
const (
	// TXTKeyConfigNumber is the configuration number, bumped when the
	// accessory database changes.
	TXTKeyConfigNumber = "c#"

	// TXTKeyFeatureFlags is the pairing feature flags bitmap.
	TXTKeyFeatureFlags = "ff"

	// TXTKeyDeviceID is the accessory pairing identifier.
	TXTKeyDeviceID = "id"

	// TXTKeyModel is the model name.
	TXTKeyModel = "md"

	// TXTKeyProtocolVersion is the protocol version string.
	TXTKeyProtocolVersion = "pv"

	// TXTKeyStateNumber is the current state number.
	TXTKeyStateNumber = "s#"

	// TXTKeyStatusFlags is the status flags bitmap.
	TXTKeyStatusFlags = "sf"

	// TXTKeyCategory is the accessory category identifier.
	TXTKeyCategory = "ci"

	// TXTKeySetupHash is the setup hash matched against a scanned setup payload.
	TXTKeySetupHash = "sh"
)

// Defaults for TXT values the accessory does not track itself.
const (
	// DefaultProtocolVersion is the advertised pv value.
	DefaultProtocolVersion = "1.1"

	// DefaultStateNumber is the advertised s# value. It is fixed for IP accessories.
	DefaultStateNumber = 1

	// SetupHashSize is the number of raw bytes encoded in sh.
	SetupHashSize = 4
)

// TXT holds the TXT record of a _hap._tcp service.
type TXT struct {
	ConfigNumber    uint16
	FeatureFlags    FeatureFlag
	DeviceID        string
	Model           string
	ProtocolVersion string
	StateNumber     uint32
	StatusFlags     StatusFlag
	Category        Category

	// SetupHash is optional. It is omitted from the record when empty.
	SetupHash string
}

// Encode converts the TXT record to DNS-SD format strings.
// Empty ProtocolVersion and zero StateNumber encode as their defaults.
func (t *TXT) Encode() []string {
	pv := t.ProtocolVersion
	if pv == "" {
		pv = DefaultProtocolVersion
	}
	sn := t.StateNumber
	if sn == 0 {
		sn = DefaultStateNumber
	}

	txt := []string{
		fmt.Sprintf("%s=%d", TXTKeyConfigNumber, t.ConfigNumber),
		fmt.Sprintf("%s=%d", TXTKeyFeatureFlags, t.FeatureFlags),
		TXTKeyDeviceID + "=" + t.DeviceID,
		TXTKeyModel + "=" + t.Model,
		TXTKeyProtocolVersion + "=" + pv,
		fmt.Sprintf("%s=%d", TXTKeyStateNumber, sn),
		fmt.Sprintf("%s=%d", TXTKeyStatusFlags, t.StatusFlags),
		fmt.Sprintf("%s=%d", TXTKeyCategory, t.Category),
	}
	if t.SetupHash != "" {
		txt = append(txt, TXTKeySetupHash+"="+t.SetupHash)
	}
	return txt
}

// Validate checks that the TXT record values can be advertised.
func (t *TXT) Validate() error {
	if !ValidDeviceID(t.DeviceID) {
		return ErrInvalidDeviceID
	}
	if t.Model == "" {
		return ErrInvalidModel
	}
	if t.ConfigNumber == 0 {
		return ErrInvalidConfigNumber
	}
	if t.Category == 0 {
		return ErrInvalidCategory
	}
	if t.SetupHash != "" {
		raw, err := base64.StdEncoding.DecodeString(t.SetupHash)
		if err != nil || len(raw) != SetupHashSize {
			return ErrInvalidSetupHash
		}
	}
	return nil
}

// Paired reports whether the record advertises a paired accessory.
func (t *TXT) Paired() bool {
	return !t.StatusFlags.Has(StatusNotPaired)
}

// ValidDeviceID reports whether id has the form XX:XX:XX:XX:XX:XX with
// upper-case hex digits.
func ValidDeviceID(id string) bool {
	if len(id) != 17 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if i%3 == 2 {
			if c != ':' {
				return false
			}
			continue
		}
		if !(c >= '0' && c <= '9') && !(c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

// ParseTXTPairs parses raw TXT record strings into a map.
func ParseTXTPairs(records []string) map[string]string {
	result := make(map[string]string)
	for _, record := range records {
		if idx := strings.IndexByte(record, '='); idx > 0 {
			result[record[:idx]] = record[idx+1:]
		}
	}
	return result
}

// ParseTXT parses raw TXT records of a _hap._tcp service. Unknown keys are
// ignored; numeric keys that fail to parse return ErrInvalidTXTRecord.
func ParseTXT(records []string) (*TXT, error) {
	m := ParseTXTPairs(records)
	txt := &TXT{
		DeviceID:        m[TXTKeyDeviceID],
		Model:           m[TXTKeyModel],
		ProtocolVersion: m[TXTKeyProtocolVersion],
		SetupHash:       m[TXTKeySetupHash],
	}

	if v, ok := m[TXTKeyConfigNumber]; ok {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyConfigNumber, v)
		}
		txt.ConfigNumber = uint16(n)
	}

	if v, ok := m[TXTKeyFeatureFlags]; ok {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyFeatureFlags, v)
		}
		txt.FeatureFlags = FeatureFlag(n)
	}

	if v, ok := m[TXTKeyStateNumber]; ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyStateNumber, v)
		}
		txt.StateNumber = uint32(n)
	}

	if v, ok := m[TXTKeyStatusFlags]; ok {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyStatusFlags, v)
		}
		txt.StatusFlags = StatusFlag(n)
	}

	if v, ok := m[TXTKeyCategory]; ok {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyCategory, v)
		}
		txt.Category = Category(n)
	}

	return txt, nil
}
