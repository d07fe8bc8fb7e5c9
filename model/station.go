package model

import "strings"

const defaultDisplayName = "Radio Station"

// Station describes one playable internet radio station as returned by the
// station directory or loaded from a catalog file.
type Station struct {
	ID          string `json:"stationuuid" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	URL         string `json:"url" yaml:"url"`
	URLResolved string `json:"url_resolved" yaml:"url_resolved,omitempty"`
	Homepage    string `json:"homepage" yaml:"homepage,omitempty"`
	Favicon     string `json:"favicon" yaml:"favicon,omitempty"`
	Country     string `json:"country" yaml:"country,omitempty"`
	CountryCode string `json:"countrycode" yaml:"country_code,omitempty"`
	Language    string `json:"language" yaml:"language,omitempty"`
	Tags        string `json:"tags" yaml:"tags,omitempty"`
	Codec       string `json:"codec" yaml:"codec,omitempty"`
	Bitrate     int    `json:"bitrate" yaml:"bitrate,omitempty"`
	Votes       int    `json:"votes" yaml:"-"`
	LastCheckOK int    `json:"lastcheckok" yaml:"-"`
}

// StreamURL returns the pre-resolved stream URL if the directory provided
// one, falling back to the declared URL.
func (s Station) StreamURL() string {
	if resolved := strings.TrimSpace(s.URLResolved); resolved != "" {
		return resolved
	}
	return strings.TrimSpace(s.URL)
}

// DisplayName returns the station name, or a generic label for unnamed stations
func (s Station) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return defaultDisplayName
}

// ArtworkURL returns the favicon URL, or "" when the directory has none.
// radio-browser reports a missing favicon as the literal string "null".
func (s Station) ArtworkURL() string {
	if s.Favicon == "" || s.Favicon == "null" {
		return ""
	}
	return s.Favicon
}

func (s Station) matches(query string) bool {
	return strings.Contains(strings.ToLower(s.DisplayName()), query) ||
		strings.Contains(strings.ToLower(s.Tags), query) ||
		strings.Contains(strings.ToLower(s.Country), query)
}
