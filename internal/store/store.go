package store

import (
	"time"

	"vpntrack/internal/domain"
)

// Store is the durable record store: one keyed collection of IP records and
// one of subnet records. LoadIPs on a store that has never been written
// returns an empty collection, not an error.
type Store interface {
	LoadIPs() ([]domain.IPRecord, error)
	SaveIPs(records []domain.IPRecord) error
	SaveSubnets(records []domain.SubnetRecord) error
}

// MergeIPs reconciles the freshly resolved addresses against the existing
// records. Known addresses get their LastSeen bumped to now and keep their
// FirstSeen; new addresses enter with FirstSeen = LastSeen = now. Records
// not observed in this run are retained untouched: the merge never deletes.
func MergeIPs(existing []domain.IPRecord, resolved []string, now time.Time) []domain.IPRecord {
	merged := make([]domain.IPRecord, len(existing))
	copy(merged, existing)

	index := make(map[string]int, len(merged))
	for i, rec := range merged {
		index[rec.IP] = i
	}

	for _, ip := range resolved {
		if i, known := index[ip]; known {
			merged[i].LastSeen = now
			continue
		}
		index[ip] = len(merged)
		merged = append(merged, domain.IPRecord{
			IP:        ip,
			FirstSeen: now,
			LastSeen:  now,
		})
	}

	return merged
}

// SubnetSet deduplicates classified CIDRs into subnet records, preserving
// first-appearance order.
func SubnetSet(cidrs []string) []domain.SubnetRecord {
	seen := make(map[string]struct{}, len(cidrs))
	records := make([]domain.SubnetRecord, 0, len(cidrs))
	for _, cidr := range cidrs {
		if _, dup := seen[cidr]; dup {
			continue
		}
		seen[cidr] = struct{}{}
		records = append(records, domain.SubnetRecord{Subnet: cidr})
	}
	return records
}
