// Package discovery advertises and locates servers on the local
// network via mDNS/DNS-SD.
//
// Servers register a "_duet._udp" service with their datagram port and
// protocol version in TXT records; clients browse for those services
// instead of configuring an address by hand.
package discovery
