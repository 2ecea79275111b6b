package fingerprint

import (
	"go.uber.org/zap"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
	"github.com/Alfahan/sso-sub000/internal/core/port"
	"github.com/Alfahan/sso-sub000/internal/infra/logger"
)

// Builder assembles request fingerprints from the raw IP and User-Agent.
type Builder struct {
	geo    port.GeoResolver
	agents port.AgentParser
	logger *zap.Logger
}

// NewBuilder constructs a fingerprint builder.
func NewBuilder(geo port.GeoResolver, agents port.AgentParser, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{geo: geo, agents: agents, logger: log}
}

// Build resolves all fingerprint dimensions. A failed geo lookup degrades to
// an unknown country instead of failing the request.
func (b *Builder) Build(ip, userAgent string) domain.Fingerprint {
	fp := domain.Fingerprint{IP: ip}

	if b.geo != nil {
		country, err := b.geo.Country(ip)
		if err != nil {
			b.logger.Warn("geo lookup failed", zap.String("ip", logger.MaskIP(ip)), zap.Error(err))
		} else {
			fp.Country = country
		}
	}

	if b.agents != nil {
		fp.OS, fp.Browser, fp.Device = b.agents.Parse(userAgent)
	}

	return fp
}
