package accessory

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/backkem/hap/pkg/crypto"
	"github.com/skip2/go-qrcode"
)

// SetupURIPrefix starts every setup payload.
const SetupURIPrefix = "X-HM://"

// Setup payload layout.
const (
	payloadVersion       = 0
	payloadFlagIP        = 2
	payloadVersionShift  = 43
	payloadCategoryShift = 31
	payloadFlagsShift    = 27
	payloadDigits        = 9
)

// DefaultQRSize is the default PNG edge length in pixels.
const DefaultQRSize = 256

// SetupURI returns the setup payload encoded in the accessory's QR code,
// e.g. "X-HM://00522H1VM1QJ8".
func (a *Accessory) SetupURI() string {
	a.mu.RLock()
	code, category, setupID := a.config.SetupCode, a.config.Category, a.setupID
	a.mu.RUnlock()

	return setupURI(setupCodeValue(code), uint64(category), setupID)
}

func setupURI(code, category uint64, setupID string) string {
	v := uint64(payloadVersion)<<payloadVersionShift |
		category<<payloadCategoryShift |
		uint64(payloadFlagIP)<<payloadFlagsShift |
		code
	enc := strings.ToUpper(strconv.FormatUint(v, 36))
	if len(enc) < payloadDigits {
		enc = strings.Repeat("0", payloadDigits-len(enc)) + enc
	}
	return SetupURIPrefix + enc + setupID
}

// SetupQRCode renders the setup URI as a PNG of size x size pixels.
// A size of zero uses DefaultQRSize.
func (a *Accessory) SetupQRCode(size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	return qrcode.Encode(a.SetupURI(), qrcode.Medium, size)
}

// SetupHash returns the sh TXT value: the first four bytes of
// SHA-512(setupID || deviceID), base64 encoded.
func (a *Accessory) SetupHash() string {
	a.mu.RLock()
	setupID := a.setupID
	a.mu.RUnlock()
	return setupHash(setupID, a.identity.DeviceID())
}

func setupHash(setupID, deviceID string) string {
	sum := crypto.SHA512([]byte(setupID + deviceID))
	return base64.StdEncoding.EncodeToString(sum[:4])
}

// SetupInfo contains everything needed to pair with the accessory.
type SetupInfo struct {
	Name      string
	DeviceID  string
	SetupCode string
	SetupID   string
	SetupURI  string
	Category  string
	Port      int
}

// GetSetupInfo returns the pairing information for the accessory.
func (a *Accessory) GetSetupInfo() SetupInfo {
	a.mu.RLock()
	info := SetupInfo{
		Name:      a.config.Name,
		SetupCode: a.config.SetupCode,
		SetupID:   a.setupID,
		Category:  a.config.Category.String(),
		Port:      a.config.Port,
	}
	a.mu.RUnlock()

	info.DeviceID = a.identity.DeviceID()
	info.SetupURI = a.SetupURI()
	return info
}
