package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"vpntrack/internal/domain"
)

var (
	ipHeader     = []string{"ip", "first_seen", "last_seen"}
	subnetHeader = []string{"subnet"}
)

// CSVStore persists records as delimited text files with a header row,
// timestamps in RFC 3339 UTC. Writes replace the whole file through a
// temp-file rename so a failed write never truncates the previous store.
type CSVStore struct {
	ipPath     string
	subnetPath string
}

func NewCSVStore(ipPath, subnetPath string) *CSVStore {
	return &CSVStore{ipPath: ipPath, subnetPath: subnetPath}
}

func (s *CSVStore) LoadIPs() ([]domain.IPRecord, error) {
	f, err := os.Open(s.ipPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: open ip file: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("store: read ip file: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	records := make([]domain.IPRecord, 0, len(rows)-1)
	for _, row := range rows[1:] { // skip header
		if len(row) < 3 {
			return nil, fmt.Errorf("store: malformed ip row %v", row)
		}
		firstSeen, err := time.Parse(time.RFC3339, row[1])
		if err != nil {
			return nil, fmt.Errorf("store: parse first_seen for %s: %w", row[0], err)
		}
		lastSeen, err := time.Parse(time.RFC3339, row[2])
		if err != nil {
			return nil, fmt.Errorf("store: parse last_seen for %s: %w", row[0], err)
		}
		records = append(records, domain.IPRecord{
			IP:        row[0],
			FirstSeen: firstSeen,
			LastSeen:  lastSeen,
		})
	}
	return records, nil
}

func (s *CSVStore) SaveIPs(records []domain.IPRecord) error {
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, ipHeader)
	for _, rec := range records {
		rows = append(rows, []string{
			rec.IP,
			rec.FirstSeen.UTC().Format(time.RFC3339),
			rec.LastSeen.UTC().Format(time.RFC3339),
		})
	}
	return writeCSV(s.ipPath, rows)
}

func (s *CSVStore) SaveSubnets(records []domain.SubnetRecord) error {
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, subnetHeader)
	for _, rec := range records {
		rows = append(rows, []string{rec.Subnet})
	}
	return writeCSV(s.subnetPath, rows)
}

func writeCSV(path string, rows [][]string) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("store: create directory for %s: %w", path, err)
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("store: create temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close temp file for %s: %w", path, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("store: replace %s: %w", path, err)
	}
	return nil
}
