package subnet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"vpntrack/internal/retry"
)

// Classifier maps an IPv4 address to its containing subnet. The authoritative
// answer comes from an ip.guide-style lookup service; when the service is
// unreachable or answers without a CIDR, the /24 fallback steps in, so
// classification always terminates with a value.
type Classifier struct {
	client    *http.Client
	baseURL   string
	userAgent string
	policy    retry.Policy

	// cache is optional; nil disables it. Lookup results are cached across
	// runs so a stable IP does not hit the lookup service every time.
	cache    *redis.Client
	cacheTTL time.Duration
}

type lookupResponse struct {
	Network struct {
		CIDR string `json:"cidr"`
	} `json:"network"`
}

func New(client *http.Client, baseURL, userAgent string, policy retry.Policy, cache *redis.Client, cacheTTL time.Duration) *Classifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &Classifier{
		client:    client,
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		policy:    policy,
		cache:     cache,
		cacheTTL:  cacheTTL,
	}
}

// Classify returns the subnet for ip. It never fails: exhausted retries and
// CIDR-less responses both degrade to the deterministic /24 fallback.
func (c *Classifier) Classify(ctx context.Context, ip string) string {
	if cidr := c.cachedCIDR(ctx, ip); cidr != "" {
		return cidr
	}

	var cidr string
	err := c.policy.Do(func() error {
		var lookupErr error
		cidr, lookupErr = c.lookup(ctx, ip)
		return lookupErr
	})
	if err != nil {
		log.Warn("Subnet lookup failed, falling back to /24", "ip", ip, "error", err)
		cidr = FallbackCIDR(ip)
	} else if cidr == "" {
		log.Debug("Subnet lookup returned no CIDR, falling back to /24", "ip", ip)
		cidr = FallbackCIDR(ip)
	}

	c.storeCIDR(ctx, ip, cidr)
	return cidr
}

func (c *Classifier) lookup(ctx context.Context, ip string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+ip, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var parsed lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return strings.TrimSpace(parsed.Network.CIDR), nil
}

func (c *Classifier) cachedCIDR(ctx context.Context, ip string) string {
	if c.cache == nil {
		return ""
	}
	cidr, err := c.cache.Get(ctx, cacheKey(ip)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Debug("Subnet cache read failed", "ip", ip, "error", err)
		}
		return ""
	}
	return cidr
}

func (c *Classifier) storeCIDR(ctx context.Context, ip, cidr string) {
	if c.cache == nil || cidr == "" {
		return
	}
	if err := c.cache.Set(ctx, cacheKey(ip), cidr, c.cacheTTL).Err(); err != nil {
		log.Debug("Subnet cache write failed", "ip", ip, "error", err)
	}
}

func cacheKey(ip string) string {
	return "vpntrack:subnet:" + ip
}

// FallbackCIDR synthesizes the /24 network from the first three octets of an
// IPv4 address: 203.0.113.55 becomes 203.0.113.0/24.
func FallbackCIDR(ip string) string {
	if parsed := net.ParseIP(ip); parsed != nil {
		if v4 := parsed.To4(); v4 != nil {
			return fmt.Sprintf("%d.%d.%d.0/24", v4[0], v4[1], v4[2])
		}
	}
	// Best effort for anything that slipped past IP validation.
	parts := strings.Split(ip, ".")
	if len(parts) >= 3 {
		return strings.Join(parts[:3], ".") + ".0/24"
	}
	return ip + "/24"
}
