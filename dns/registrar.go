package dns

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"braces.dev/errtrace"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ghettovoice/softphone/internal/log"
)

// DefaultSIPPort is the port used when no SRV record is found.
const DefaultSIPPort = 5060

// Registrar is a resolved SIP registrar address.
type Registrar struct {
	Host      string
	Port      uint16
	Transport string
}

// Addr returns the host:port of the registrar.
func (r Registrar) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(int(r.Port)))
}

func (r Registrar) LogValue() slog.Value {
	return slog.GroupValue(slog.String("addr", r.Addr()), slog.String("transport", r.Transport))
}

// Lookuper performs the DNS queries needed for registrar discovery.
// [Resolver] implements it.
type Lookuper interface {
	LookupNAPTR(ctx context.Context, host string) ([]*NAPTR, error)
	LookupSRV(ctx context.Context, service, proto, host string) ([]*SRV, error)
}

// LookupRegistrar discovers the registrar of the realm reachable over transport.
// It follows the NAPTR records of the transport service to their SRV
// replacement, then tries the _sip._<transport> SRV record of the realm and
// finally falls back to the realm itself on port 5060.
// An empty transport means UDP.
func LookupRegistrar(ctx context.Context, lk Lookuper, realm, transport string) Registrar {
	realm = strings.TrimSuffix(realm, ".")
	transport = strings.ToLower(transport)
	if transport == "" {
		transport = TransportUDP
	}
	fallback := Registrar{Host: realm, Port: DefaultSIPPort, Transport: transport}
	if ip := net.ParseIP(realm); ip != nil {
		return fallback
	}

	if naptrs, err := lk.LookupNAPTR(ctx, realm); err == nil {
		for _, rec := range naptrs {
			if rec.Transport() != transport || !strings.EqualFold(rec.Flags, "s") {
				continue
			}
			if reg, ok := lookupSRVTarget(ctx, lk, rec.Replacement, transport); ok {
				return reg
			}
		}
	}

	if srvs, err := lk.LookupSRV(ctx, "sip", transport, realm); err == nil {
		if reg, ok := pickSRV(srvs, transport); ok {
			return reg
		}
	}
	return fallback
}

func lookupSRVTarget(ctx context.Context, lk Lookuper, name, transport string) (Registrar, bool) {
	// Empty service and proto make LookupSRV query the name as is.
	srvs, err := lk.LookupSRV(ctx, "", "", strings.TrimSuffix(name, "."))
	if err != nil {
		return Registrar{}, false
	}
	return pickSRV(srvs, transport)
}

func pickSRV(srvs []*SRV, transport string) (Registrar, bool) {
	for _, srv := range srvs {
		target := strings.TrimSuffix(srv.Target, ".")
		if target == "" {
			continue
		}
		return Registrar{Host: target, Port: srv.Port, Transport: transport}, true
	}
	return Registrar{}, false
}

// DefaultCacheTTL is the lifetime of cached registrars.
const DefaultCacheTTL = 5 * time.Minute

// CacheOptions are options of the [Cache].
type CacheOptions struct {
	// Size is the maximum number of cached realms.
	// If zero, 64 is used.
	Size int
	// TTL is the lifetime of cached entries.
	// If zero, [DefaultCacheTTL] is used.
	TTL time.Duration
	// Log is the logger.
	// If nil, the [log.Default] is used.
	Log *slog.Logger
}

func (o *CacheOptions) size() int {
	if o == nil || o.Size <= 0 {
		return 64
	}
	return o.Size
}

func (o *CacheOptions) ttl() time.Duration {
	if o == nil || o.TTL <= 0 {
		return DefaultCacheTTL
	}
	return o.TTL
}

func (o *CacheOptions) log() *slog.Logger {
	if o == nil || o.Log == nil {
		return log.Default()
	}
	return o.Log
}

// Cache resolves registrars and caches the results per realm.
type Cache struct {
	lk    Lookuper
	cache *expirable.LRU[string, Registrar]
	log   *slog.Logger
}

// NewCache creates a registrar cache on top of lk.
// If lk is nil, the [DefaultResolver] is used.
func NewCache(lk Lookuper, opts *CacheOptions) *Cache {
	if lk == nil {
		lk = DefaultResolver()
	}
	return &Cache{
		lk:    lk,
		cache: expirable.NewLRU[string, Registrar](opts.size(), nil, opts.ttl()),
		log:   opts.log(),
	}
}

// Lookup returns the registrar of the realm reachable over transport.
func (c *Cache) Lookup(ctx context.Context, realm, transport string) (Registrar, error) {
	realm = strings.ToLower(strings.TrimSuffix(realm, "."))
	if realm == "" {
		return Registrar{}, errtrace.Wrap(&net.DNSError{Err: "empty realm", IsNotFound: true})
	}
	transport = strings.ToLower(transport)
	if transport == "" {
		transport = TransportUDP
	}

	key := transport + ":" + realm
	if reg, ok := c.cache.Get(key); ok {
		return reg, nil
	}

	reg := LookupRegistrar(ctx, c.lk, realm, transport)
	if err := ctx.Err(); err != nil {
		return Registrar{}, errtrace.Wrap(err)
	}
	c.cache.Add(key, reg)

	c.log.LogAttrs(ctx, slog.LevelDebug, "registrar resolved", slog.String("realm", realm), slog.Any("registrar", reg))
	return reg, nil
}

// ResolveRegistrar returns the host:port of the realm registrar reachable over transport.
func (c *Cache) ResolveRegistrar(ctx context.Context, realm, transport string) (string, error) {
	reg, err := c.Lookup(ctx, realm, transport)
	if err != nil {
		return "", errtrace.Wrap(err)
	}
	return reg.Addr(), nil
}
