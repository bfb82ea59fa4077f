// Package ratelimit throttles anonymous demo scans per client IP.
package ratelimit

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/LabelFox/internal/pkg/cache"
	"github.com/ManuelReschke/LabelFox/internal/pkg/env"
)

const (
	DemoMax        = 5
	DemoWindow     = time.Hour
	DemoLimitError = "Too many demo scans from this IP. Please try again later."
)

// NewRedisStorage returns a limiter store on the cache Redis, database 2.
func NewRedisStorage() fiber.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if client := cache.GetClient(); client != nil {
		addr := client.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 2,
		Reset:    false,
	})
}

// Demo returns the demo scan limiter: a fixed window of DemoMax requests per
// client IP and DemoWindow. A nil storage keeps counters in process memory.
func Demo(storage fiber.Storage) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:               DemoMax,
		Expiration:        DemoWindow,
		LimiterMiddleware: limiter.FixedWindow{},
		Storage:           storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "demo:" + ClientIP(c)
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Infof("[RateLimit] Demo limit reached for %s", ClientIP(c))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": DemoLimitError,
			})
		},
	})
}

// TrustProxies makes c.IP() read header, but only for requests arriving from
// one of proxies (addresses or CIDR ranges). With no proxies every forwarding
// header is ignored and the socket address is used.
func TrustProxies(cfg fiber.Config, header string, proxies []string) fiber.Config {
	cfg.EnableTrustedProxyCheck = true
	cfg.TrustedProxies = proxies
	cfg.ProxyHeader = ""
	if len(proxies) > 0 {
		cfg.ProxyHeader = header
	}
	return cfg
}

// TrustProxiesFromEnv applies TRUSTED_PROXIES (comma separated) and
// PROXY_HEADER, e.g. CF-Connecting-IP behind Cloudflare.
func TrustProxiesFromEnv(cfg fiber.Config) fiber.Config {
	var proxies []string
	for _, p := range strings.Split(env.GetEnv("TRUSTED_PROXIES", ""), ",") {
		if p = strings.TrimSpace(p); p != "" {
			proxies = append(proxies, p)
		}
	}
	return TrustProxies(cfg, env.GetEnv("PROXY_HEADER", fiber.HeaderXForwardedFor), proxies)
}

// ClientIP is the limiter key of a request. Forwarded addresses only count
// when the app trusts the sending proxy; a forwarded list yields its first
// entry, the original client.
func ClientIP(c *fiber.Ctx) string {
	ip := c.IP()
	if i := strings.IndexByte(ip, ','); i >= 0 {
		ip = ip[:i]
	}
	return strings.TrimPrefix(strings.TrimSpace(ip), "::ffff:")
}
