// Package discovery implements DNS-SD (mDNS) discovery for HomeKit
// accessories.
//
// This package provides:
//   - Advertising of the _hap._tcp service with the accessory TXT record
//   - Live updates of the status flags when the pairing state changes
//   - Resolution of _hap._tcp services to find accessories on the network
package discovery

import (
	"fmt"
	"strings"
)

// DNS-SD service strings.
const (
	// ServiceHAP is the DNS-SD service type of IP accessories.
	ServiceHAP = "_hap._tcp"

	// DefaultDomain is the default mDNS domain.
	DefaultDomain = "local."
)

// StatusFlag is a bit of the sf TXT key.
type StatusFlag uint8

// StatusFlag bits.
const (
	// StatusNotPaired is set while the accessory has no paired controller.
	StatusNotPaired StatusFlag = 0x01

	// StatusNotConfiguredForWiFi is set while the accessory has not joined a network.
	StatusNotConfiguredForWiFi StatusFlag = 0x02

	// StatusProblemDetected is set when the accessory reports a fault.
	StatusProblemDetected StatusFlag = 0x04
)

// Has reports whether all bits of flag are set.
func (s StatusFlag) Has(flag StatusFlag) bool {
	return s&flag == flag
}

// String returns the set bits joined by '|'.
func (s StatusFlag) String() string {
	if s == 0 {
		return "Paired"
	}
	var parts []string
	if s.Has(StatusNotPaired) {
		parts = append(parts, "NotPaired")
	}
	if s.Has(StatusNotConfiguredForWiFi) {
		parts = append(parts, "NotConfiguredForWiFi")
	}
	if s.Has(StatusProblemDetected) {
		parts = append(parts, "ProblemDetected")
	}
	if rest := s &^ (StatusNotPaired | StatusNotConfiguredForWiFi | StatusProblemDetected); rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%02x", uint8(rest)))
	}
	return strings.Join(parts, "|")
}

// FeatureFlag is a bit of the ff TXT key.
type FeatureFlag uint8

// FeatureFlag bits.
const (
	// FeatureHardwareAuth advertises an authentication coprocessor.
	FeatureHardwareAuth FeatureFlag = 0x01

	// FeatureSoftwareAuth advertises software token authentication.
	FeatureSoftwareAuth FeatureFlag = 0x02
)

// Category is the accessory category advertised in the ci TXT key and
// encoded in the setup payload.
type Category uint16

// Category values.
const (
	CategoryOther            Category = 1
	CategoryBridge           Category = 2
	CategoryFan              Category = 3
	CategoryGarageDoorOpener Category = 4
	CategoryLightbulb        Category = 5
	CategoryDoorLock         Category = 6
	CategoryOutlet           Category = 7
	CategorySwitch           Category = 8
	CategoryThermostat       Category = 9
	CategorySensor           Category = 10
	CategorySecuritySystem   Category = 11
	CategoryDoor             Category = 12
	CategoryWindow           Category = 13
	CategoryWindowCovering   Category = 14
	CategoryProgrammable     Category = 15
	CategoryIPCamera         Category = 17
	CategoryAirPurifier      Category = 19
	CategoryHeater           Category = 20
	CategoryAirConditioner   Category = 21
	CategoryHumidifier       Category = 22
	CategoryDehumidifier     Category = 23
	CategorySprinkler        Category = 28
	CategoryFaucet           Category = 29
	CategoryShowerSystem     Category = 30
	CategoryTelevision       Category = 31
)

var categoryNames = map[Category]string{
	CategoryOther:            "Other",
	CategoryBridge:           "Bridge",
	CategoryFan:              "Fan",
	CategoryGarageDoorOpener: "GarageDoorOpener",
	CategoryLightbulb:        "Lightbulb",
	CategoryDoorLock:         "DoorLock",
	CategoryOutlet:           "Outlet",
	CategorySwitch:           "Switch",
	CategoryThermostat:       "Thermostat",
	CategorySensor:           "Sensor",
	CategorySecuritySystem:   "SecuritySystem",
	CategoryDoor:             "Door",
	CategoryWindow:           "Window",
	CategoryWindowCovering:   "WindowCovering",
	CategoryProgrammable:     "ProgrammableSwitch",
	CategoryIPCamera:         "IPCamera",
	CategoryAirPurifier:      "AirPurifier",
	CategoryHeater:           "Heater",
	CategoryAirConditioner:   "AirConditioner",
	CategoryHumidifier:       "Humidifier",
	CategoryDehumidifier:     "Dehumidifier",
	CategorySprinkler:        "Sprinkler",
	CategoryFaucet:           "Faucet",
	CategoryShowerSystem:     "ShowerSystem",
	CategoryTelevision:       "Television",
}

// String returns a human-readable name for the category.
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Category(%d)", uint16(c))
}

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	_, ok := categoryNames[c]
	return ok
}
