// Package intel provides file-backed threat lists: Tor exit nodes, open
// proxies, and disposable email domains. Lists are loaded once at startup;
// a missing or unreadable file degrades to an empty set rather than
// failing boot.
package intel

import (
	"bufio"
	"log/slog"
	"os"
	"strings"
)

// Lists answers membership questions against the loaded sets.
type Lists struct {
	torExits   map[string]struct{}
	proxies    map[string]struct{}
	disposable map[string]struct{}
}

// Config names the list files. Empty paths are skipped.
type Config struct {
	TorExitNodesPath      string
	ProxyListPath         string
	DisposableDomainsPath string
}

// Load reads the configured list files. It never returns an error; each
// missing file is logged and its set left empty.
func Load(cfg Config, logger *slog.Logger) *Lists {
	l := &Lists{
		torExits:   loadSet(cfg.TorExitNodesPath, logger, "tor_exit_nodes"),
		proxies:    loadSet(cfg.ProxyListPath, logger, "proxy_list"),
		disposable: loadSet(cfg.DisposableDomainsPath, logger, "disposable_domains"),
	}
	logger.Info("intel lists loaded",
		"tor_exits", len(l.torExits),
		"proxies", len(l.proxies),
		"disposable_domains", len(l.disposable),
	)
	return l
}

// IsTorExit reports whether the IP is a known Tor exit node.
func (l *Lists) IsTorExit(ip string) bool {
	_, ok := l.torExits[strings.TrimSpace(ip)]
	return ok
}

// IsProxy reports whether the IP is a known open proxy.
func (l *Lists) IsProxy(ip string) bool {
	_, ok := l.proxies[strings.TrimSpace(ip)]
	return ok
}

// IsDisposableEmail reports whether the email's domain is a disposable
// email provider. Empty or malformed addresses are not disposable.
func (l *Lists) IsDisposableEmail(email string) bool {
	_, domain, found := strings.Cut(email, "@")
	if !found || domain == "" {
		return false
	}
	_, ok := l.disposable[cleanEntry(domain)]
	return ok
}

func loadSet(path string, logger *slog.Logger, name string) map[string]struct{} {
	set := make(map[string]struct{})
	if path == "" {
		return set
	}

	f, err := os.Open(path)
	if err != nil {
		logger.Warn("intel list unavailable", "list", name, "path", path, "error", err)
		return set
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		entry := cleanEntry(scanner.Text())
		if entry == "" || strings.HasPrefix(entry, "#") {
			continue
		}
		set[entry] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("intel list read error", "list", name, "path", path, "error", err)
	}

	return set
}

// cleanEntry strips whitespace and invisible characters (zero-width
// spaces, BOM) that show up in community-maintained lists, and lowercases.
func cleanEntry(s string) string {
	return strings.ToLower(strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff', '\r', '\n', '\t', ' ':
			return -1
		}
		return r
	}, s))
}
