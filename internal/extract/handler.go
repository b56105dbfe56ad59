package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/roman-kulish/indoor-localization/internal/reference"
)

const (
	SourceWiFi Source = "wifi"
	SourceBLE  Source = "ble"
)

// ErrNoReadings is returned for a tagged line that carries no usable reading.
var ErrNoReadings = errors.New("no readings in line")

// Source is the radio a scan was taken with.
type Source string

func (s Source) String() string {
	return string(s)
}

// Handler recognizes and parses the scan lines of one source.
type Handler interface {
	Source() Source
	Match(line string) bool
	Parse(line string) ([]reference.Reading, error)
}

// pairParser extracts identifier and RSSI pairs. Every identifier opens a
// segment that ends where the next identifier starts, and the RSSI is looked
// up only inside that segment so that an entry without a level never borrows
// the level of the following entry.
type pairParser struct {
	tags  []string
	id    *regexp.Regexp
	level *regexp.Regexp
}

func (p pairParser) Match(line string) bool {
	for _, tag := range p.tags {
		if strings.Contains(line, tag) {
			return true
		}
	}
	return false
}

func (p pairParser) Parse(line string) ([]reference.Reading, error) {
	ids := p.id.FindAllStringSubmatchIndex(line, -1)
	if len(ids) == 0 {
		return nil, ErrNoReadings
	}

	var readings []reference.Reading
	for i, m := range ids {
		end := len(line)
		if i+1 < len(ids) {
			end = ids[i+1][0]
		}

		id := line[m[2]:m[3]]
		if id == "None" {
			continue
		}

		level := p.level.FindStringSubmatch(line[m[1]:end])
		if level == nil {
			continue
		}

		rssi, err := strconv.Atoi(level[1])
		if err != nil {
			return nil, fmt.Errorf("parsing RSSI of '%s': %w", id, err)
		}
		readings = append(readings, reference.Reading{ID: id, RSSI: rssi})
	}

	if len(readings) == 0 {
		return nil, ErrNoReadings
	}
	return readings, nil
}

// WiFiHandler parses Wi-Fi scan results, e.g.
//
//	D WifiNetworkSelectorN: SSID: lab, BSSID: c0:74:ad:9d:de:f6, Level: -52, SSID: ...
type WiFiHandler struct {
	pairParser
}

func NewWiFiHandler() *WiFiHandler {
	return &WiFiHandler{pairParser{
		tags:  []string{"WifiNetworkScannerN", "WifiNetworkSelectorN"},
		id:    regexp.MustCompile(`BSSID: ([^,\s]+)`),
		level: regexp.MustCompile(`Level: (-\d+)`),
	}}
}

func (h *WiFiHandler) Source() Source {
	return SourceWiFi
}

// BLEHandler parses Bluetooth LE advertisements, e.g.
//
//	D BLeScannerN: Found device: 37:C1:60:F6:01:91, BLeRSSI: -50
type BLEHandler struct {
	pairParser
}

func NewBLEHandler() *BLEHandler {
	return &BLEHandler{pairParser{
		tags:  []string{"BLeScannerN"},
		id:    regexp.MustCompile(`[Dd]evice: ([^,\s]+)`),
		level: regexp.MustCompile(`RSSI: (-\d+)`),
	}}
}

func (h *BLEHandler) Source() Source {
	return SourceBLE
}
