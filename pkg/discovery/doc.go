// Package discovery finds home automation hosts on the local network.
//
// Hosts announce themselves over mDNS/DNS-SD as _home-assistant._tcp in the
// local domain. The TXT record carries the URLs the host is reachable at:
//
//	location_name=Home
//	uuid=0f8a6c1e9c6d4b1f8a8e7d8c3b2a1f00
//	version=2026.10.0
//	base_url=http://192.168.1.20:8123
//	internal_url=http://homeassistant.local:8123
//	external_url=https://home.example.com
//
// Entries seen on several interfaces are aggregated by instance name, so a
// host with IPv4 and IPv6 addresses is reported once.
package discovery
