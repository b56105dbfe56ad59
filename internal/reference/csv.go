package reference

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const (
	columnSSID      = "AP_SSID"
	columnBSSID     = "AP_BSSID"
	columnLatitude  = "latitude"
	columnLongitude = "longitude"
	columnA         = "A"
	columnN         = "n"

	// legacy survey sheets carried a scratch column for the live RSSI
	columnRealTime = "REAL_TIME_RSSI"
)

// CSVKind identifies the layout of a reference model CSV file.
type CSVKind string

const (
	CSVUnknown      CSVKind = "unknown"
	CSVHeatmap      CSVKind = "heatmap"       // AP_SSID,AP_BSSID,<label>...
	CSVAccessPoints CSVKind = "access-points" // AP_SSID,AP_BSSID,latitude,longitude,A[,n]
)

var columnAliases = map[string]string{
	"SSID":  columnSSID,
	"BSSID": columnBSSID,
}

// DetectCSVKind inspects a header row and reports which reference model it describes.
func DetectCSVKind(header []string) CSVKind {
	cols := normalizeHeader(header)
	if _, ok := indexOf(cols, columnBSSID); !ok {
		return CSVUnknown
	}

	_, hasLat := indexOf(cols, columnLatitude)
	_, hasLon := indexOf(cols, columnLongitude)
	_, hasA := indexOf(cols, columnA)
	if hasLat && hasLon && hasA {
		return CSVAccessPoints
	}

	if len(heatmapLabels(cols)) > 0 {
		return CSVHeatmap
	}
	return CSVUnknown
}

// ReadHeatmapCSV reads a symbolic heatmap where each row is an access point and
// each label column holds the RSSI expected at that location. Empty or non-numeric
// cells mean the access point is not expected to be observable there.
func ReadHeatmapCSV(r io.Reader) (*Heatmap, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := normalizeHeader(header)

	bssidIdx, ok := indexOf(cols, columnBSSID)
	if !ok {
		return nil, fmt.Errorf("%w: missing %s column", ErrInvalidModel, columnBSSID)
	}

	labels := heatmapLabels(cols)
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: no location columns", ErrInvalidModel)
	}

	fps := make([]Fingerprint, len(labels))
	for i, l := range labels {
		fps[i] = Fingerprint{Label: cols[l], Expected: make(map[string]int)}
	}

	var universe []string
	seen := make(map[string]struct{})
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading line %d: %w", line, err)
		}

		bssid := strings.TrimSpace(record[bssidIdx])
		if bssid == "" {
			return nil, fmt.Errorf("%w: line %d has no %s", ErrInvalidModel, line, columnBSSID)
		}
		if _, ok := seen[bssid]; ok {
			return nil, fmt.Errorf("%w: line %d repeats access point '%s'", ErrInvalidModel, line, bssid)
		}
		seen[bssid] = struct{}{}
		universe = append(universe, bssid)

		for i, l := range labels {
			rssi, ok, err := parseRSSICell(record[l])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d, location '%s': %w", ErrInvalidModel, line, cols[l], err)
			}
			if !ok {
				continue
			}
			fps[i].Expected[bssid] = rssi
		}
	}

	return NewHeatmap(universe, fps...)
}

// WriteHeatmapCSV writes the heatmap in the layout read by ReadHeatmapCSV.
func WriteHeatmapCSV(w io.Writer, h *Heatmap) error {
	cw := csv.NewWriter(w)

	labels := h.Labels()
	if err := cw.Write(append([]string{columnSSID, columnBSSID}, labels...)); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, id := range h.universe {
		record := make([]string, 0, len(labels)+2)
		record = append(record, "", id)
		for _, fp := range h.fingerprints {
			if rssi, ok := fp.Expected[id]; ok {
				record = append(record, strconv.Itoa(rssi))
			} else {
				record = append(record, "")
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing access point '%s': %w", id, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadAccessPointsCSV reads a geo-referenced access point table.
func ReadAccessPointsCSV(r io.Reader) (*AccessPointTable, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := normalizeHeader(header)

	idx := make(map[string]int)
	for _, name := range []string{columnBSSID, columnLatitude, columnLongitude, columnA} {
		i, ok := indexOf(cols, name)
		if !ok {
			return nil, fmt.Errorf("%w: missing %s column", ErrInvalidModel, name)
		}
		idx[name] = i
	}
	ssidIdx, hasSSID := indexOf(cols, columnSSID)
	nIdx, hasN := indexOf(cols, columnN)

	var aps []AccessPoint
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading line %d: %w", line, err)
		}

		ap := AccessPoint{ID: strings.TrimSpace(record[idx[columnBSSID]])}
		if hasSSID {
			ap.SSID = strings.TrimSpace(record[ssidIdx])
		}

		fields := []struct {
			name string
			dst  *float64
		}{
			{columnLatitude, &ap.Latitude},
			{columnLongitude, &ap.Longitude},
			{columnA, &ap.A},
		}
		for _, f := range fields {
			if *f.dst, err = strconv.ParseFloat(strings.TrimSpace(record[idx[f.name]]), 64); err != nil {
				return nil, fmt.Errorf("%w: line %d column %s: %w", ErrInvalidModel, line, f.name, err)
			}
		}

		if hasN {
			if v := strings.TrimSpace(record[nIdx]); v != "" {
				if ap.N, err = strconv.ParseFloat(v, 64); err != nil {
					return nil, fmt.Errorf("%w: line %d column %s: %w", ErrInvalidModel, line, columnN, err)
				}
			}
		}

		aps = append(aps, ap)
	}

	return NewAccessPointTable(aps...)
}

// WriteAccessPointsCSV writes the table in the layout read by ReadAccessPointsCSV.
func WriteAccessPointsCSV(w io.Writer, t *AccessPointTable) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{columnSSID, columnBSSID, columnLatitude, columnLongitude, columnA, columnN}); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, ap := range t.aps {
		record := []string{
			ap.SSID,
			ap.ID,
			strconv.FormatFloat(ap.Latitude, 'f', -1, 64),
			strconv.FormatFloat(ap.Longitude, 'f', -1, 64),
			strconv.FormatFloat(ap.A, 'f', -1, 64),
			"",
		}
		if ap.N != 0 {
			record[5] = strconv.FormatFloat(ap.N, 'f', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing access point '%s': %w", ap.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func normalizeHeader(header []string) []string {
	cols := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if alias, ok := columnAliases[h]; ok {
			h = alias
		}
		cols[i] = h
	}
	return cols
}

func heatmapLabels(cols []string) []int {
	var labels []int
	for i, c := range cols {
		switch c {
		case columnSSID, columnBSSID, columnRealTime, "":
			continue
		}
		labels = append(labels, i)
	}
	return labels
}

func indexOf(cols []string, name string) (int, bool) {
	for i, c := range cols {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

// parseRSSICell reports ok=false for empty, non-numeric and NaN cells.
// Fractional values are an error.
func parseRSSICell(cell string) (int, bool, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false, nil
	}
	if math.IsInf(v, 0) || v != math.Trunc(v) {
		return 0, false, fmt.Errorf("RSSI %q is not a whole number of dBm", cell)
	}
	return int(v), true, nil
}
