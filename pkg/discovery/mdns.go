package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// Advertiser is a running mDNS advertisement. Shutdown withdraws it.
type Advertiser struct {
	mu     sync.Mutex
	server *zeroconf.Server
}

// Advertise registers the server on the local network. The
// advertisement stays up until Shutdown is called.
func Advertise(info ServerInfo) (*Advertiser, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}

	instance := info.Instance
	if len(instance) > MaxInstanceNameLen {
		instance = instance[:MaxInstanceNameLen]
	}

	server, err := zeroconf.Register(
		instance,
		ServiceType,
		Domain,
		info.Port,
		EncodeTXT(info),
		nil, // all interfaces
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}

	return &Advertiser{server: server}, nil
}

// Shutdown withdraws the advertisement. Safe to call multiple times.
func (a *Advertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// Browse searches for advertised servers until the context is
// cancelled. Each discovered server is delivered once per instance
// name; the channel closes when browsing stops.
func Browse(ctx context.Context) (<-chan Discovered, error) {
	out := make(chan Discovered)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(out)

		seen := make(map[string]bool)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				d, valid := entryToDiscovered(entry)
				if !valid || seen[d.Instance] {
					continue
				}
				seen[d.Instance] = true
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					continue
				}
				delete(seen, entry.Instance)

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed)
	}()

	return out, nil
}

// entryToDiscovered converts a raw service entry, keeping only IPv4
// addresses since the transport is IPv4-only.
func entryToDiscovered(entry *zeroconf.ServiceEntry) (Discovered, bool) {
	if entry == nil || len(entry.AddrIPv4) == 0 {
		return Discovered{}, false
	}

	txt := ParseTXT(entry.Text)
	return Discovered{
		Instance:  entry.Instance,
		Host:      entry.HostName,
		Addresses: entry.AddrIPv4,
		Port:      entry.Port,
		Version:   txt[txtKeyVersion],
	}, true
}
