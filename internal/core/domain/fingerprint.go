package domain

import "strings"

// Fingerprint describes the origin of a request: raw IP, geolocation-derived
// country, and the parsed user-agent triple.
type Fingerprint struct {
	IP      string
	Country string
	OS      string
	Browser string
	Device  string
}

// Matches compares two fingerprints dimension by dimension. Empty dimensions
// on either side are treated as equal so partial data never flags a mismatch.
func (f Fingerprint) Matches(other Fingerprint) bool {
	return len(f.Diff(other)) == 0
}

// Diff returns the anomaly kinds raised when other deviates from f.
func (f Fingerprint) Diff(other Fingerprint) []AnomalyKind {
	var kinds []AnomalyKind
	if dimensionDiffers(f.Country, other.Country) {
		kinds = append(kinds, AnomalyLocation)
	}
	if dimensionDiffers(f.IP, other.IP) {
		kinds = append(kinds, AnomalyIP)
	}
	if dimensionDiffers(f.OS, other.OS) || dimensionDiffers(f.Browser, other.Browser) || dimensionDiffers(f.Device, other.Device) {
		kinds = append(kinds, AnomalyDevice)
	}
	return kinds
}

func dimensionDiffers(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	return !strings.EqualFold(a, b)
}

// AnomalyKind labels a single mismatched fingerprint dimension.
type AnomalyKind string

const (
	AnomalyLocation AnomalyKind = "LOCATION"
	AnomalyIP       AnomalyKind = "IP"
	AnomalyDevice   AnomalyKind = "DEVICE"
)
