package middleware

import (
	"net"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// SecurityHeaders sets the response headers relevant to a JSON API. The
// API never serves HTML, so the CSP denies everything.
func SecurityHeaders() echo.MiddlewareFunc {
	return echomw.SecureWithConfig(echomw.SecureConfig{
		XSSProtection:         "0",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	})
}

// CORS allows the browser client at the given origins to call the API with
// its session cookie. A wildcard origin is dropped because browsers refuse
// credentials for it anyway.
func CORS(allowedOrigins []string) echo.MiddlewareFunc {
	origins := make([]string, 0, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o != "" && o != "*" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		// Echo treats an empty list as "*"; same-origin only instead.
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	return echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderXRequestedWith},
		AllowCredentials: true,
		MaxAge:           3600,
	})
}

// TrustedProxies makes c.RealIP() honour X-Forwarded-For only when the
// direct peer is inside one of trustedCIDRs. Invalid CIDRs are skipped.
func TrustedProxies(e *echo.Echo, trustedCIDRs []string) {
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, cidr := range trustedCIDRs {
		if _, network, err := net.ParseCIDR(cidr); err == nil {
			opts = append(opts, echo.TrustIPRange(network))
		}
	}
	e.IPExtractor = echo.ExtractIPFromXFFHeader(opts...)
}

// RequestID tags each request with an X-Request-ID header.
func RequestID() echo.MiddlewareFunc {
	return echomw.RequestID()
}
