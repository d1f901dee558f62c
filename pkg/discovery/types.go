package discovery

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Service constants.
const (
	// ServiceType is the DNS-SD service type hosts announce.
	ServiceType = "_home-assistant._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the host's default HTTP port.
	DefaultPort = 8123

	// BrowseTimeout is the default timeout for FindFirst.
	BrowseTimeout = 10 * time.Second
)

// TXT record keys.
const (
	TXTKeyLocationName = "location_name"
	TXTKeyUUID         = "uuid"
	TXTKeyVersion      = "version"
	TXTKeyBaseURL      = "base_url"
	TXTKeyInternalURL  = "internal_url"
	TXTKeyExternalURL  = "external_url"
)

// Discovery errors.
var (
	ErrNotFound   = errors.New("no host found")
	ErrNoEndpoint = errors.New("service has no usable address")
)

// Service is one discovered host.
type Service struct {
	Instance  string
	Host      string
	Port      uint16
	Addresses []string

	LocationName string
	UUID         string
	Version      string
	BaseURL      string
	InternalURL  string
	ExternalURL  string
}

// URL returns the address to connect to. Announced URLs are preferred in
// the order internal, base, external; otherwise the first address and port
// are used.
func (s *Service) URL() (string, error) {
	for _, u := range []string{s.InternalURL, s.BaseURL, s.ExternalURL} {
		if u != "" {
			return u, nil
		}
	}

	if len(s.Addresses) == 0 {
		if s.Host == "" {
			return "", fmt.Errorf("%w: %s", ErrNoEndpoint, s.Instance)
		}
		return "http://" + net.JoinHostPort(strings.TrimSuffix(s.Host, "."), s.portString()), nil
	}
	return "http://" + net.JoinHostPort(s.Addresses[0], s.portString()), nil
}

func (s *Service) portString() string {
	port := s.Port
	if port == 0 {
		port = DefaultPort
	}
	return strconv.Itoa(int(port))
}

// ServiceEntry is a raw browse result, independent of the mDNS library.
type ServiceEntry struct {
	Instance string
	Host     string
	Port     uint16
	Text     []string
	Addrs    []string
}

// ToService decodes the entry's TXT record.
func (e ServiceEntry) ToService() *Service {
	txt := StringsToTXTRecords(e.Text)
	return &Service{
		Instance:     e.Instance,
		Host:         e.Host,
		Port:         e.Port,
		Addresses:    append([]string(nil), e.Addrs...),
		LocationName: txt[TXTKeyLocationName],
		UUID:         txt[TXTKeyUUID],
		Version:      txt[TXTKeyVersion],
		BaseURL:      txt[TXTKeyBaseURL],
		InternalURL:  txt[TXTKeyInternalURL],
		ExternalURL:  txt[TXTKeyExternalURL],
	}
}

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// StringsToTXTRecords parses "key=value" strings. A key without "=" maps
// to the empty string.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		key, value, found := strings.Cut(s, "=")
		if found {
			txt[key] = value
		} else if key != "" {
			txt[key] = ""
		}
	}
	return txt
}

// mergeAddresses adds new addresses to existing, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses filters out the given addresses.
func removeAddresses(addresses, removed []string) []string {
	drop := make(map[string]bool, len(removed))
	for _, addr := range removed {
		drop[addr] = true
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !drop[addr] {
			result = append(result, addr)
		}
	}
	return result
}
