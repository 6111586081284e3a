package discovery

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	"vpntrack/internal/retry"
)

// ErrNoServersFound means the archive downloaded fine but no entry carried a
// remote endpoint declaration.
var ErrNoServersFound = errors.New("discovery: archive contained no server endpoints")

const remoteDirective = "remote"

// Discoverer downloads the provider's OpenVPN configuration archive and
// extracts the remote endpoint declared by each configuration entry.
type Discoverer struct {
	client      *http.Client
	url         string
	userAgent   string
	entrySuffix string
	maxBytes    int64
	policy      retry.Policy
}

func New(client *http.Client, url, userAgent, entrySuffix string, maxBytes int64, policy retry.Policy) *Discoverer {
	if client == nil {
		client = http.DefaultClient
	}
	if entrySuffix == "" {
		entrySuffix = ".ovpn"
	}
	return &Discoverer{
		client:      client,
		url:         url,
		userAgent:   userAgent,
		entrySuffix: entrySuffix,
		maxBytes:    maxBytes,
		policy:      policy,
	}
}

// Discover fetches the archive with bounded retry and returns the
// deduplicated endpoint set. A fetch that exhausts all retries aborts the
// run; individual unreadable or remote-less entries are skipped.
func (d *Discoverer) Discover(ctx context.Context) ([]string, error) {
	var payload []byte
	err := d.policy.Do(func() error {
		var fetchErr error
		payload, fetchErr = d.fetchArchive(ctx)
		if fetchErr != nil {
			log.Warn("Config archive fetch failed, will retry", "url", d.url, "error", fetchErr)
		}
		return fetchErr
	})
	if err != nil {
		return nil, fmt.Errorf("discovery: fetch config archive: %w", err)
	}

	endpoints, err := d.extractEndpoints(payload)
	if err != nil {
		return nil, err
	}
	if len(endpoints) == 0 {
		return nil, ErrNoServersFound
	}
	return endpoints, nil
}

func (d *Discoverer) fetchArchive(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	reader := io.Reader(resp.Body)
	if d.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, d.maxBytes)
	}
	return io.ReadAll(reader)
}

func (d *Discoverer) extractEndpoints(payload []byte) ([]string, error) {
	archive, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return nil, fmt.Errorf("discovery: open archive: %w", err)
	}

	seen := make(map[string]struct{})
	endpoints := make([]string, 0, len(archive.File))

	for _, entry := range archive.File {
		if !strings.HasSuffix(entry.Name, d.entrySuffix) {
			continue
		}

		endpoint, err := extractRemote(entry)
		if err != nil {
			log.Warn("Skipping unreadable archive entry", "entry", entry.Name, "error", err)
			continue
		}
		if endpoint == "" {
			continue
		}

		if _, dup := seen[endpoint]; dup {
			continue
		}
		seen[endpoint] = struct{}{}
		endpoints = append(endpoints, endpoint)
	}

	return endpoints, nil
}

// extractRemote scans entry line by line and returns the first token after
// the first "remote" directive, or "" when the entry declares none.
func extractRemote(entry *zip.File) (string, error) {
	rc, err := entry.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == remoteDirective {
			return fields[1], nil
		}
	}
	return "", scanner.Err()
}
