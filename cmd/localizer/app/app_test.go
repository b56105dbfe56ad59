package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/roman-kulish/indoor-localization/internal/extract"
	"github.com/roman-kulish/indoor-localization/internal/localization"
	"github.com/roman-kulish/indoor-localization/internal/reference"
	"github.com/roman-kulish/indoor-localization/internal/storage"
)

const (
	wifiLine = "05-23 14:05:13.878  3415  3415 D WifiNetworkSelectorN: SSID: nitlab, BSSID: c0:74:ad:9d:de:f6, Level: -52, " +
		"SSID: nitlab, BSSID: c0:74:ad:9d:de:f5, Level: -54"
	bleLine = "04-22 14:59:22.129  4744  4744 D BLeScannerN: Found device: 37:C1:60:F6:01:91, BLeRSSI: -50"

	heatmapCSV = "AP_SSID,AP_BSSID,office,kitchen\n" +
		"nitlab,c0:74:ad:9d:de:f6,-52,-80\n" +
		"nitlab,c0:74:ad:9d:de:f5,-54,-60\n"

	accessPointsCSV = "AP_SSID,AP_BSSID,latitude,longitude,A\n" +
		"nitlab,c0:74:ad:9d:de:f6,39.36582,22.92377,-40\n" +
		"nitlab,c0:74:ad:9d:de:f5,39.36590,22.92380,-40\n"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func decodeRecords(t *testing.T, out *bytes.Buffer) []localization.Record {
	t.Helper()

	var records []localization.Record
	dec := json.NewDecoder(out)
	for dec.More() {
		var rec localization.Record
		if err := dec.Decode(&rec); err != nil {
			t.Fatalf("Failed to decode record: %v", err)
		}
		records = append(records, rec)
	}
	return records
}

func TestRun_Heatmap(t *testing.T) {
	dir := t.TempDir()

	config := NewConfig()
	config.Model.DeviceID = "phone-1"
	config.Model.Heatmap = writeFile(t, dir, "heatmap.csv", heatmapCSV)
	logPath := writeFile(t, dir, "device.log", wifiLine+"\n"+bleLine+"\nnoise\n")

	var out bytes.Buffer
	if err := Run(context.Background(), config, logPath, &out, discard); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	records := decodeRecords(t, &out)
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].DeviceID != "phone-1" || records[0].Location.Kind() != localization.KindSingle {
		t.Errorf("Expected a single location, got %+v", records[0])
	}
	if label := records[0].Location.Label(); label != "office" {
		t.Errorf("Expected office, got %s", records[0].Location)
	}
	if records[1].Location.Kind() != localization.KindUnknown {
		t.Errorf("Expected unknown for the BLE scan, got %s", records[1].Location)
	}
}

func TestRun_StoredModel(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	dbPath := filepath.Join(dir, "reference.db")
	table, err := reference.ReadAccessPointsCSV(strings.NewReader(accessPointsCSV))
	if err != nil {
		t.Fatalf("Failed to read access points: %v", err)
	}

	store := storage.NewSqliteStore(dbPath)
	if err = store.SaveAccessPoints(ctx, "phone-1", table); err != nil {
		t.Fatalf("SaveAccessPoints failed: %v", err)
	}
	if err = store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	config := NewConfig()
	config.Model.DeviceID = "phone-1"
	config.Storage.DBPath = dbPath
	config.Storage.StoreEstimates = true
	config.Render.Enabled = true
	config.Render.Directory = filepath.Join(dir, "plots")

	logPath := writeFile(t, dir, "device.log", wifiLine+"\n"+bleLine+"\n")

	var out bytes.Buffer
	if err = Run(ctx, config, logPath, &out, discard); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	records := decodeRecords(t, &out)
	if len(records) != 1 {
		t.Fatalf("Expected the BLE scan to be skipped, got %d records", len(records))
	}
	if records[0].Location.Kind() != localization.KindCoordinate {
		t.Errorf("Expected a coordinate, got %s", records[0].Location)
	}

	plots, err := filepath.Glob(filepath.Join(dir, "plots", "phone-1-*.png"))
	if err != nil || len(plots) != 1 {
		t.Errorf("Expected one plot, got %v (%v)", plots, err)
	}

	store = storage.NewSqliteStore(dbPath)
	defer store.Close()

	r, err := store.Estimates(ctx, "phone-1")
	if err != nil {
		t.Fatalf("Estimates failed: %v", err)
	}
	defer r.Close()

	n := 0
	for r.Next(ctx) {
		n++
	}
	if n != 1 {
		t.Errorf("Expected 1 stored estimate, got %d", n)
	}
}

func TestRun_MissingDevice(t *testing.T) {
	config := NewConfig()
	config.Model.Heatmap = "heatmap.csv"

	var cfgErr *ConfigError
	if err := Run(context.Background(), config, "", io.Discard, discard); !errors.As(err, &cfgErr) {
		t.Errorf("Expected a ConfigError, got %v", err)
	}
}

func TestPipeline_TooManyParseErrors(t *testing.T) {
	h, err := reference.ReadHeatmapCSV(strings.NewReader(heatmapCSV))
	if err != nil {
		t.Fatalf("Failed to read heatmap: %v", err)
	}
	engine, err := localization.NewEngine(localization.DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	malformed := strings.Repeat("D WifiNetworkScannerN: garbage\n", extract.ParseErrorsThreshold)
	p := NewPipeline("phone-1", h, extract.NewExtractor(), engine, discard)

	var out bytes.Buffer
	if err = p.Run(context.Background(), strings.NewReader(wifiLine+"\n"+malformed), &out); !errors.Is(err, extract.ErrTooManyParseErrors) {
		t.Errorf("Expected ErrTooManyParseErrors, got %v", err)
	}
	if emitted, _ := p.Stats(); emitted != 1 {
		t.Errorf("Expected the scan before the errors to be emitted, got %d", emitted)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{
			name: "heatmap",
			yaml: `
settings:
  logLevel: debug
engine:
  solver: closed-form
model:
  deviceID: phone-1
  heatmap: heatmap.csv
render:
  enabled: true
  theme: thermal
`,
		},
		{
			name: "stored model",
			yaml: `
model:
  deviceID: phone-1
storage:
  dbPath: reference.db
  storeEstimates: true
`,
		},
		{
			name:    "no model",
			yaml:    "model:\n  deviceID: phone-1\n",
			wantErr: true,
		},
		{
			name:    "both csv files",
			yaml:    "model:\n  heatmap: a.csv\n  accessPoints: b.csv\n",
			wantErr: true,
		},
		{
			name:    "unknown solver",
			yaml:    "engine:\n  solver: magic\nmodel:\n  heatmap: a.csv\n",
			wantErr: true,
		},
		{
			name:    "store without db",
			yaml:    "model:\n  heatmap: a.csv\nstorage:\n  storeEstimates: true\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, "config.yaml", tt.yaml)

			config, err := LoadConfig(path)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadConfig failed: %v", err)
			}
			if config.Engine.Epsilon != localization.DefaultConfig().Epsilon {
				t.Errorf("Expected default epsilon to be kept, got %v", config.Engine.Epsilon)
			}
		})
	}
}
