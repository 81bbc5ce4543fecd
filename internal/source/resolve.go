package source

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mmcdole/hoard/internal/domain"
)

// ResolveCreator extracts the host and creator path from an artist page URL,
// e.g. https://kemono.su/patreon/user/12345. It performs no I/O.
func ResolveCreator(rawURL string) (domain.Creator, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return domain.Creator{}, fmt.Errorf("%w: empty url", domain.ErrInvalidInput)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return domain.Creator{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}

	// "kemono.su/patreon/user/1" parses as a bare path
	if u.Scheme == "" && u.Host == "" {
		u, err = url.Parse("https://" + rawURL)
		if err != nil {
			return domain.Creator{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
		}
	}
	if u.Host == "" {
		return domain.Creator{}, fmt.Errorf("%w: no host in %q", domain.ErrInvalidInput, rawURL)
	}

	var segments []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) == 0 {
		return domain.Creator{}, fmt.Errorf("%w: no creator segment in %q", domain.ErrInvalidInput, rawURL)
	}
	id := segments[len(segments)-1]
	if id == "." || id == ".." {
		return domain.Creator{}, fmt.Errorf("%w: bad creator segment %q", domain.ErrInvalidInput, id)
	}

	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}

	return domain.Creator{
		Scheme: scheme,
		Host:   u.Host,
		Path:   strings.Join(segments, "/"),
		ID:     id,
	}, nil
}

// HostAllowed reports whether host contains one of the allowed fragments.
// An empty allowlist allows every host.
func HostAllowed(host string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" && strings.Contains(host, a) {
			return true
		}
	}
	return false
}
