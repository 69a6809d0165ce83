package secure

import (
	"fmt"

	"github.com/gobuffalo/buffalo"
)

// Options configures the security middleware
type Options struct {
	// DevMode disables some security features for development
	DevMode bool

	// ContentTypeOptions sets X-Content-Type-Options header
	ContentTypeNosniff bool

	// FrameOptions sets X-Frame-Options header
	FrameDeny       bool
	FrameSameOrigin bool

	// XSSProtection sets X-XSS-Protection header
	XSSProtection bool

	// ContentSecurityPolicy sets CSP header
	ContentSecurityPolicy string

	// StrictTransportSecurity sets HSTS header
	STSSeconds           int64
	STSIncludeSubdomains bool
	STSPreload           bool

	// ReferrerPolicy sets Referrer-Policy header
	ReferrerPolicy string
}

// DefaultOptions returns secure defaults
func DefaultOptions() Options {
	return Options{
		ContentTypeNosniff: true,
		FrameDeny:          true,
		XSSProtection:      true,
		STSSeconds:         31536000, // 1 year
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'; " +
			"script-src 'self' 'unsafe-inline' 'unsafe-eval' https://unpkg.com https://esm.sh; " +
			"style-src 'self' 'unsafe-inline'; " +
			"img-src 'self' data: https:; " +
			"font-src 'self' data:; " +
			"connect-src 'self'; " +
			"frame-ancestors 'none';",
	}
}

// Middleware returns security middleware for Buffalo
func Middleware(opts Options) buffalo.MiddlewareFunc {
	// Apply defaults
	if opts.ContentTypeNosniff == false && opts.FrameDeny == false && opts.XSSProtection == false {
		devMode := opts.DevMode
		opts = DefaultOptions()
		opts.DevMode = devMode
	}

	// Adjust for dev mode
	if opts.DevMode {
		// Relax some restrictions in development
		opts.FrameDeny = false
		opts.FrameSameOrigin = true
		opts.STSSeconds = 0 // Disable HSTS in dev
	}

	return func(next buffalo.Handler) buffalo.Handler {
		return func(c buffalo.Context) error {
			// Get response writer
			w := c.Response()

			// Apply security headers
			if opts.ContentTypeNosniff {
				w.Header().Set("X-Content-Type-Options", "nosniff")
			}

			// Frame options
			if opts.FrameDeny {
				w.Header().Set("X-Frame-Options", "DENY")
			} else if opts.FrameSameOrigin {
				w.Header().Set("X-Frame-Options", "SAMEORIGIN")
			}

			// XSS Protection
			if opts.XSSProtection {
				w.Header().Set("X-XSS-Protection", "1; mode=block")
			}

			// Content Security Policy
			if opts.ContentSecurityPolicy != "" {
				w.Header().Set("Content-Security-Policy", opts.ContentSecurityPolicy)
			}

			// Strict Transport Security (only in production)
			if !opts.DevMode && opts.STSSeconds > 0 {
				value := formatSTSHeader(opts.STSSeconds, opts.STSIncludeSubdomains, opts.STSPreload)
				w.Header().Set("Strict-Transport-Security", value)
			}

			// Referrer Policy
			if opts.ReferrerPolicy != "" {
				w.Header().Set("Referrer-Policy", opts.ReferrerPolicy)
			}

			// Additional security headers
			w.Header().Set("X-Permitted-Cross-Domain-Policies", "none")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

			return next(c)
		}
	}
}

// Helper functions

func formatSTSHeader(seconds int64, includeSubdomains, preload bool) string {
	header := formatInt(seconds)
	if includeSubdomains {
		header += "; includeSubDomains"
	}
	if preload {
		header += "; preload"
	}
	return header
}

func formatInt(i int64) string {
	return fmt.Sprintf("max-age=%d", i)
}
