package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"vpntrack/internal/config"
	"vpntrack/internal/discovery"
	"vpntrack/internal/geolite"
	"vpntrack/internal/resolver"
	"vpntrack/internal/retry"
	"vpntrack/internal/store"
	"vpntrack/internal/subnet"
	"vpntrack/internal/support"
)

// Discoverer yields the endpoint set published by the provider.
type Discoverer interface {
	Discover(ctx context.Context) ([]string, error)
}

// IPResolver turns endpoints into a deduplicated IPv4 set.
type IPResolver interface {
	Resolve(ctx context.Context, names []string) ([]string, error)
}

// SubnetClassifier maps one IP to its CIDR. It never fails.
type SubnetClassifier interface {
	Classify(ctx context.Context, ip string) string
}

// Pipeline wires the four stages of a run together. Each run is a single
// sequential pass: Discovering, Resolving, then Classifying+Merging against
// the record store.
type Pipeline struct {
	Discoverer Discoverer
	Resolver   IPResolver
	Classifier SubnetClassifier
	Store      store.Store
	Geo        *geolite.Reader
	Now        func() time.Time
}

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}
	log.SetLevel(log.DebugLevel)

	cfg, err := config.Load(config.SettingsFilePath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	pipeline, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer pipeline.Geo.Close()
	defer func() {
		if err := support.CloseRedisClient(); err != nil {
			log.Warn("error closing redis client", "error", err)
		}
	}()

	return pipeline.Execute(context.Background())
}

func buildPipeline(cfg config.Config) (*Pipeline, error) {
	transport, err := support.CreateTransport(cfg.OutboundProxy, cfg.DiscoveryTimeout())
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}

	fetchClient := &http.Client{Transport: transport, Timeout: cfg.DiscoveryTimeout()}
	lookupClient := &http.Client{Transport: transport, Timeout: cfg.SubnetLookupTimeout()}

	redisClient, err := support.GetRedisClient(support.GetEnv("REDIS_URL", ""))
	if err != nil {
		log.Warn("Subnet cache unavailable, continuing without it", "error", err)
		redisClient = nil
	}

	var recordStore store.Store
	switch cfg.Store.Backend {
	case "postgres":
		dsn := support.GetEnv("DATABASE_URL", "")
		if dsn == "" {
			return nil, fmt.Errorf("store backend is postgres but DATABASE_URL is not set")
		}
		recordStore, err = store.OpenPostgres(dsn)
		if err != nil {
			return nil, err
		}
	default:
		recordStore = store.NewCSVStore(cfg.Store.IPFile, cfg.Store.SubnetFile)
	}

	return &Pipeline{
		Discoverer: discovery.New(
			fetchClient,
			cfg.Discovery.ConfigURL,
			cfg.UserAgent,
			cfg.Discovery.EntrySuffix,
			cfg.Discovery.MaxResponseBytes,
			retry.Policy{MaxAttempts: int(cfg.Discovery.Retries), Delay: cfg.DiscoveryRetryDelay()},
		),
		Resolver: resolver.New(
			cfg.DNS.Nameservers,
			cfg.DNSTimeout(),
			cfg.DNSLifetime(),
			retry.Policy{MaxAttempts: int(cfg.DNS.Retries), Delay: cfg.DNSRetryDelay()},
		),
		Classifier: subnet.New(
			lookupClient,
			cfg.SubnetLookup.BaseURL,
			cfg.UserAgent,
			retry.Policy{MaxAttempts: int(cfg.SubnetLookup.Retries), Delay: cfg.SubnetLookupRetryDelay()},
			redisClient,
			cfg.SubnetCacheTTL(),
		),
		Store: recordStore,
		Geo:   geolite.Open(cfg.GeoLiteCountryDB),
		Now:   time.Now,
	}, nil
}

// Execute drives one run. Discovery or resolution failures end the run
// before the record store is touched; anything unexpected in the
// classify-and-merge phase is caught there and surfaces as a plain error.
func (p *Pipeline) Execute(ctx context.Context) error {
	log.Info("Discovering endpoints")
	endpoints, err := p.Discoverer.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}
	log.Info("Found servers", "count", len(endpoints))

	log.Info("Resolving endpoints")
	ips, err := p.Resolver.Resolve(ctx, endpoints)
	if err != nil {
		return fmt.Errorf("resolution failed: %w", err)
	}
	log.Info("Resolved addresses", "count", len(ips))

	if err := p.classifyAndMerge(ctx, ips); err != nil {
		return err
	}

	log.Info("Run complete", "servers", len(endpoints), "ips", len(ips))
	return nil
}

func (p *Pipeline) classifyAndMerge(ctx context.Context, ips []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected failure while merging records: %v", r)
		}
	}()

	now := p.now().UTC()

	existing, err := p.Store.LoadIPs()
	if err != nil {
		return fmt.Errorf("load ip records: %w", err)
	}

	merged := store.MergeIPs(existing, ips, now)
	enriched := 0
	for i := range merged {
		if merged[i].Country != "" {
			continue
		}
		// Disabled or missing GeoLite databases answer "N/A" rather than
		// skipping, matching how proxies without geo data are recorded.
		merged[i].Country = p.Geo.CountryCode(merged[i].IP)
		if merged[i].Country != "N/A" {
			enriched++
		}
		log.Debug("Country enrichment", "ip", merged[i].IP, "country", merged[i].Country)
	}
	log.Info("Country enrichment finished", "records", len(merged), "resolved", enriched)
	if err := p.Store.SaveIPs(merged); err != nil {
		return fmt.Errorf("write ip records: %w", err)
	}
	log.Info("IP records written", "total", len(merged), "observed", len(ips))

	cidrs := make([]string, 0, len(ips))
	for _, ip := range ips {
		cidrs = append(cidrs, p.Classifier.Classify(ctx, ip))
	}
	subnets := store.SubnetSet(cidrs)
	if err := p.Store.SaveSubnets(subnets); err != nil {
		return fmt.Errorf("write subnet records: %w", err)
	}
	log.Info("Subnet records written", "total", len(subnets))

	return nil
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
