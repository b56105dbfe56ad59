package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const (
	wifiLine = "05-23 14:05:13.878  3415  3415 D WifiNetworkSelectorN: SSID: DIRECT-CJLAPTOP, BSSID: ea:f3:bc:bd:4a:63, Level: -49, " +
		"SSID: nitlab, BSSID: c0:74:ad:9d:de:f6, Level: -52, SSID: nitlab, BSSID: c0:74:ad:9d:de:f5, Level: -54, " +
		"SSID: None, BSSID: None, Level: None "
	bleLine   = "04-22 14:59:22.129  4744  4744 D BLeScannerN: Found device: 37:C1:60:F6:01:91, BLeRSSI: -50"
	otherLine = "04-22 14:59:22.300  4744  4744 I ActivityManager: Start proc 5120:com.example/u0a123"
)

func TestExtract_WiFi(t *testing.T) {
	scan, ok, err := NewExtractor().Extract(wifiLine)
	if err != nil || !ok {
		t.Fatalf("Expected a scan, got ok=%v err=%v", ok, err)
	}

	if scan.Source != SourceWiFi {
		t.Errorf("Expected %s, got %s", SourceWiFi, scan.Source)
	}
	if scan.Set.Len() != 3 {
		t.Fatalf("Expected 3 readings, got %v", scan.Set.Readings())
	}
	if rssi, _ := scan.Set.RSSI("c0:74:ad:9d:de:f5"); rssi != -54 {
		t.Errorf("Expected -54, got %d", rssi)
	}
	if _, ok = scan.Set.RSSI("None"); ok {
		t.Error("Placeholder entry must be skipped")
	}
}

func TestExtract_BLE(t *testing.T) {
	scan, ok, err := NewExtractor().Extract(bleLine)
	if err != nil || !ok {
		t.Fatalf("Expected a scan, got ok=%v err=%v", ok, err)
	}

	if scan.Source != SourceBLE {
		t.Errorf("Expected %s, got %s", SourceBLE, scan.Source)
	}
	if rssi, ok := scan.Set.RSSI("37:C1:60:F6:01:91"); !ok || rssi != -50 {
		t.Errorf("Expected -50, got %d (present=%v)", rssi, ok)
	}
}

func TestExtract_EntryWithoutLevel(t *testing.T) {
	line := "D WifiNetworkScannerN: SSID: a, BSSID: 11:11:11:11:11:11, Level: None, SSID: b, BSSID: 22:22:22:22:22:22, Level: -70"

	scan, _, err := NewExtractor().Extract(line)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if _, ok := scan.Set.RSSI("11:11:11:11:11:11"); ok {
		t.Error("Entry without a level must not borrow the next level")
	}
	if rssi, _ := scan.Set.RSSI("22:22:22:22:22:22"); rssi != -70 {
		t.Errorf("Expected -70, got %d", rssi)
	}
}

func TestExtract_Unrelated(t *testing.T) {
	testCases := []string{otherLine, "", "   "}

	for _, line := range testCases {
		_, ok, err := NewExtractor().Extract(line)
		if ok || err != nil {
			t.Errorf("Expected line to be skipped, got ok=%v err=%v", ok, err)
		}
	}
}

func TestExtract_Malformed(t *testing.T) {
	_, ok, err := NewExtractor().Extract("D BLeScannerN: scan started")
	if !ok {
		t.Error("Tagged line must be recognized")
	}
	if !errors.Is(err, ErrNoReadings) {
		t.Errorf("Expected ErrNoReadings, got %v", err)
	}
}

func TestRun(t *testing.T) {
	input := strings.Join([]string{otherLine, wifiLine, "", bleLine, otherLine}, "\n")

	var scans []Scan
	err := NewExtractor().Run(context.Background(), strings.NewReader(input), func(s Scan) error {
		scans = append(scans, s)
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(scans) != 2 {
		t.Fatalf("Expected 2 scans, got %d", len(scans))
	}
	if scans[0].Line != 2 || scans[1].Line != 4 {
		t.Errorf("Expected scans on lines 2 and 4, got %d and %d", scans[0].Line, scans[1].Line)
	}
}

func TestRun_TooManyParseErrors(t *testing.T) {
	bad := "D BLeScannerN: scan started"

	testCases := []struct {
		name  string
		lines []string
		want  error
	}{
		{"below threshold", []string{bad, bad, bleLine, bad, bad}, nil},
		{"at threshold", []string{bad, bad, bad, bleLine}, ErrTooManyParseErrors},
		{"unrelated lines do not reset", []string{bad, otherLine, bad, otherLine, bad}, ErrTooManyParseErrors},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := NewExtractor(WithParseErrorsThreshold(3))
			err := e.Run(context.Background(), strings.NewReader(strings.Join(tc.lines, "\n")), func(Scan) error { return nil })
			if !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRun_CallbackError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0

	err := NewExtractor().Run(context.Background(), strings.NewReader(bleLine+"\n"+bleLine), func(Scan) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("Expected run to stop after the first scan, got err=%v calls=%d", err, calls)
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewExtractor().Run(ctx, strings.NewReader(bleLine), func(Scan) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
