// Package device captures the fingerprint stored with each session record.
package device

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/language"

	"github.com/skyguide-inc/skyguide/internal/domain/session"
	"github.com/skyguide-inc/skyguide/internal/shared/biztime"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
	"github.com/skyguide-inc/skyguide/internal/shared/utils"
)

const maxUserAgentLength = 512

// IPLookup resolves the public address when the request did not carry one.
type IPLookup interface {
	LookupIP(ctx context.Context) (string, error)
}

type Collector struct {
	lookup IPLookup
	policy *bluemonday.Policy
	clock  biztime.Clock
	logger logger.Interface
}

// NewCollector returns a collector. lookup may be nil, in which case
// non-public request addresses are recorded as unknown. A lookup reports the
// server's egress address, so pass one only when clients share its network.
func NewCollector(lookup IPLookup, log logger.Interface) *Collector {
	return &Collector{
		lookup: lookup,
		policy: bluemonday.StrictPolicy(),
		clock:  biztime.SystemClock(),
		logger: log.Named("device.collector"),
	}
}

// Collect never fails. Every field degrades to a placeholder instead.
func (c *Collector) Collect(ctx context.Context, req session.RequestInfo) session.DeviceInfo {
	ua := c.sanitize(req.UserAgent)
	return session.DeviceInfo{
		UserAgent: ua,
		Platform:  platform(req.PlatformHint, ua),
		Language:  primaryLanguage(req.AcceptLanguage),
		Timestamp: c.clock.Now(),
		IP:        c.resolveIP(ctx, req.RemoteIP),
	}
}

func (c *Collector) sanitize(ua string) string {
	clean := strings.TrimSpace(c.policy.Sanitize(ua))
	if len(clean) > maxUserAgentLength {
		cut := maxUserAgentLength
		for cut > 0 && !utf8.RuneStart(clean[cut]) {
			cut--
		}
		clean = clean[:cut]
	}
	return clean
}

func (c *Collector) resolveIP(ctx context.Context, remote string) string {
	if utils.IsPublicIP(remote) {
		return remote
	}
	if c.lookup == nil {
		return session.UnknownIP
	}
	ip, err := c.lookup.LookupIP(ctx)
	if err != nil {
		c.logger.Warnw("failed to resolve client ip", "remote_addr", remote, "error", err)
		return session.UnknownIP
	}
	return ip
}

// platform prefers the client hint and falls back to sniffing the user agent.
func platform(hint, ua string) string {
	if p := strings.Trim(strings.TrimSpace(hint), `"`); p != "" {
		return p
	}

	lower := strings.ToLower(ua)
	switch {
	case strings.Contains(lower, "android"):
		return "Android"
	case strings.Contains(lower, "iphone"), strings.Contains(lower, "ipad"):
		return "iOS"
	case strings.Contains(lower, "windows"):
		return "Windows"
	case strings.Contains(lower, "mac os"), strings.Contains(lower, "macintosh"):
		return "macOS"
	case strings.Contains(lower, "cros"):
		return "Chrome OS"
	case strings.Contains(lower, "linux"):
		return "Linux"
	}
	return "unknown"
}

func primaryLanguage(header string) string {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return "unknown"
	}
	return tags[0].String()
}
