package port

// GeoResolver maps a raw IP address to a country code.
type GeoResolver interface {
	Country(ip string) (string, error)
}

// AgentParser extracts the OS/browser/device triple from a User-Agent header.
type AgentParser interface {
	Parse(userAgent string) (os, browser, device string)
}
