package domain

import (
	"net"
	"time"
)

// IPRecord is one observed VPN server address. FirstSeen is written once,
// when the address shows up for the first time ever; LastSeen is bumped on
// every run that observes the address again.
type IPRecord struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	IP        string    `gorm:"size:45;uniqueIndex;not null" json:"ip"`
	FirstSeen time.Time `gorm:"not null" json:"first_seen"`
	LastSeen  time.Time `gorm:"not null" json:"last_seen"`
	Country   string    `gorm:"size:8;default:''" json:"country,omitempty"`
}

// SubnetRecord is one CIDR derived from the latest run. Subnets carry no
// history: the persisted set is fully replaced every run.
type SubnetRecord struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement" json:"-"`
	Subnet string `gorm:"size:64;uniqueIndex;not null" json:"subnet"`
}

// IsIPv4 reports whether s is a literal IPv4 address.
func IsIPv4(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil
}
