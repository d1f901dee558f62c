package discovery

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// BrowserConfig configures a Browser.
type BrowserConfig struct {
	// Interface restricts browsing to one network interface.
	// Empty means all interfaces.
	Interface string

	// Logger is the optional operational logger. Nil disables logging.
	Logger *slog.Logger
}

// Browser searches for hosts using mDNS.
type Browser struct {
	config BrowserConfig

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewBrowser creates a browser.
func NewBrowser(config BrowserConfig) *Browser {
	return &Browser{config: config}
}

// Browse streams discovered hosts until ctx is done or Stop is called.
// Each instance is emitted once; later announcements only add addresses.
func (b *Browser) Browse(ctx context.Context) (<-chan *Service, error) {
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	if b.cancel != nil {
		b.cancel()
	}
	b.cancel = cancel
	b.mu.Unlock()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	added := make(chan ServiceEntry)
	gone := make(chan ServiceEntry)
	out := make(chan *Service)

	go func() {
		defer close(added)
		defer close(gone)
		var removals <-chan *zeroconf.ServiceEntry = removed
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				select {
				case added <- fromZeroconf(entry):
				case <-ctx.Done():
					return
				}
			case entry, ok := <-removals:
				if !ok {
					removals = nil
					continue
				}
				select {
				case gone <- fromZeroconf(entry):
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go aggregate(ctx, added, gone, out)

	go func() {
		if err := zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, b.options()...); err != nil {
			b.logDebug("mdns browse ended", "error", err)
		}
	}()

	return out, nil
}

// FindFirst returns the first host discovered. Without a deadline on ctx
// it gives up after BrowseTimeout.
func (b *Browser) FindFirst(ctx context.Context) (*Service, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, BrowseTimeout)
		defer cancel()
	}

	found, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	return first(ctx, found)
}

// Stop ends the active Browse.
func (b *Browser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}

// first waits for one service on found.
func first(ctx context.Context, found <-chan *Service) (*Service, error) {
	select {
	case svc, ok := <-found:
		if !ok {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, ErrNotFound
		}
		return svc, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// aggregate merges entries by instance name and emits each new instance on
// out. out is closed when added closes or ctx is done.
func aggregate(ctx context.Context, added, gone <-chan ServiceEntry, out chan<- *Service) {
	defer close(out)

	services := make(map[string]*Service)
	for {
		select {
		case entry, ok := <-added:
			if !ok {
				return
			}
			if existing, found := services[entry.Instance]; found {
				existing.Addresses = mergeAddresses(existing.Addresses, entry.Addrs)
				continue
			}

			svc := entry.ToService()
			services[svc.Instance] = svc
			// Emit a copy; the stored entry keeps collecting addresses.
			emitted := *svc
			emitted.Addresses = append([]string(nil), svc.Addresses...)
			select {
			case out <- &emitted:
			case <-ctx.Done():
				return
			}

		case entry, ok := <-gone:
			if !ok {
				gone = nil
				continue
			}
			if existing, found := services[entry.Instance]; found {
				existing.Addresses = removeAddresses(existing.Addresses, entry.Addrs)
				if len(existing.Addresses) == 0 {
					delete(services, entry.Instance)
				}
			}

		case <-ctx.Done():
			return
		}
	}
}

func fromZeroconf(entry *zeroconf.ServiceEntry) ServiceEntry {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return ServiceEntry{
		Instance: entry.Instance,
		Host:     entry.HostName,
		Port:     uint16(entry.Port),
		Text:     entry.Text,
		Addrs:    addrs,
	}
}

// options returns zeroconf client options based on config.
func (b *Browser) options() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err != nil {
			b.logDebug("ignoring unknown interface", "interface", b.config.Interface, "error", err)
		} else {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

func (b *Browser) logDebug(msg string, args ...any) {
	if b.config.Logger != nil {
		b.config.Logger.Debug(msg, args...)
	}
}
