package sharepoint

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const listsServicePath = "/_vti_bin/Lists.asmx"

// Site identifies a SharePoint site explicitly instead of reading the
// page's context globals.
type Site struct {
	// URL is the absolute site URL.
	URL string
	// Version is "2010" or "2013"; "14" and "15" are accepted aliases.
	Version string
}

// Validate checks the site URL and normalizes Version.
func (s *Site) Validate() error {
	raw := strings.TrimRight(strings.TrimSpace(s.URL), "/")
	if raw == "" {
		return errors.New("sharepoint: site URL is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("sharepoint: bad site URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("sharepoint: site URL %q must be absolute http(s)", s.URL)
	}
	s.URL = raw

	switch s.Version {
	case "2010", "14":
		s.Version = "2010"
	case "", "2013", "15":
		s.Version = "2013"
	default:
		return fmt.Errorf("sharepoint: unsupported version %q", s.Version)
	}
	return nil
}

// Endpoint returns the Lists web service URL of the site.
func (s Site) Endpoint() string {
	return strings.TrimRight(s.URL, "/") + listsServicePath
}
