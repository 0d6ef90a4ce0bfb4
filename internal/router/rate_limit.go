package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/paypro-bridge/internal/config"
	"github.com/paypro-bridge/internal/http/response"
	"github.com/paypro-bridge/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimitKeyFunc derives the bucket key for a request.
type RateLimitKeyFunc func(*gin.Context) string

// RateLimitRule fixed window limit. A caller that exceeds MaxRequests is blocked for
// BlockSeconds, or for the rest of the window when BlockSeconds is zero.
// Message may contain one %d for the wait in seconds.
type RateLimitRule struct {
	Prefix        string
	WindowSeconds int
	MaxRequests   int
	BlockSeconds  int
	Message       string
}

const (
	rateLimitUnavailableMessage = "rate limiter unavailable"
	createRateLimitedMessage    = "too many payment requests for this user, retry in %d seconds"
)

// NewCreateRateLimitRule builds the checkout creation limit.
func NewCreateRateLimitRule(redisPrefix string, cfg config.RateLimitConfig) RateLimitRule {
	return RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:create", redisPrefix),
		WindowSeconds: cfg.WindowSeconds,
		MaxRequests:   cfg.MaxRequests,
		BlockSeconds:  cfg.BlockSeconds,
		Message:       createRateLimitedMessage,
	}
}

// KEYS[1] counter, KEYS[2] block marker. ARGV window, max, block.
// Returns {count, ttl, blocked}.
var rateLimitScript = redis.NewScript(`
local blocked = redis.call("TTL", KEYS[2])
if blocked > 0 then
	return {0, blocked, 1}
end
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
if current > tonumber(ARGV[2]) and tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[2], "1", "EX", ARGV[3])
	return {current, tonumber(ARGV[3]), 1}
end
local ttl = redis.call("TTL", KEYS[1])
return {current, ttl, 0}
`)

// RateLimitMiddleware counts requests in Redis. A nil client disables the limit.
func RateLimitMiddleware(client *redis.Client, rule RateLimitRule, keyFunc RateLimitKeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil || rule.WindowSeconds <= 0 || rule.MaxRequests <= 0 {
			c.Next()
			return
		}

		key := ""
		if keyFunc != nil {
			key = strings.TrimSpace(keyFunc(c))
		}
		if key == "" {
			key = c.ClientIP()
		}
		if rule.Prefix != "" {
			key = fmt.Sprintf("%s:%s", rule.Prefix, key)
		}

		result, err := rateLimitScript.Run(c.Request.Context(), client,
			[]string{key, key + ":blocked"},
			rule.WindowSeconds, rule.MaxRequests, rule.BlockSeconds,
		).Result()
		if err != nil {
			logger.Errorw("rate_limit_script_failed", "key", key, "error", err)
			response.Error(c, response.CodeInternal, rateLimitUnavailableMessage)
			c.Abort()
			return
		}

		decision, ok := parseRateLimitResult(result, rule)
		if !ok {
			logger.Errorw("rate_limit_result_invalid", "key", key, "result", result)
			response.Error(c, response.CodeInternal, rateLimitUnavailableMessage)
			c.Abort()
			return
		}
		if decision.limited {
			logger.Warnw("rate_limit_rejected",
				"key", key,
				"count", decision.count,
				"wait_seconds", decision.waitSeconds,
				"path", c.Request.URL.Path,
			)
			message := strings.TrimSpace(rule.Message)
			if message == "" {
				message = createRateLimitedMessage
			}
			c.Header("Retry-After", strconv.Itoa(decision.waitSeconds))
			response.Error(c, response.CodeTooManyRequests, fmt.Sprintf(message, decision.waitSeconds))
			c.Abort()
			return
		}

		c.Next()
	}
}

type rateLimitDecision struct {
	count       int64
	waitSeconds int
	limited     bool
}

func parseRateLimitResult(result interface{}, rule RateLimitRule) (rateLimitDecision, bool) {
	values, ok := result.([]interface{})
	if !ok || len(values) < 3 {
		return rateLimitDecision{}, false
	}
	count, ok := toInt64(values[0])
	if !ok {
		return rateLimitDecision{}, false
	}
	ttlSeconds, _ := toInt64(values[1])
	blocked, _ := toInt64(values[2])

	decision := rateLimitDecision{count: count}
	if blocked == 0 && count <= int64(rule.MaxRequests) {
		return decision, true
	}
	decision.limited = true
	decision.waitSeconds = int(ttlSeconds)
	if decision.waitSeconds < 1 {
		decision.waitSeconds = rule.WindowSeconds
	}
	if decision.waitSeconds < 1 {
		decision.waitSeconds = 1
	}
	return decision, true
}

// KeyByIP keys by client address.
func KeyByIP(c *gin.Context) string {
	return c.ClientIP()
}

// KeyByCreateRequest keys checkout creation by the internal app and user, falling back to
// the client address when the body does not name them. The body is restored.
func KeyByCreateRequest(c *gin.Context) string {
	fields := readJSONFields(c, "internalAppId", "internalUserId")
	app := strings.ToLower(fields["internalAppId"])
	user := strings.ToLower(fields["internalUserId"])
	if app == "" || user == "" {
		return c.ClientIP()
	}
	return fmt.Sprintf("%s|%s", app, user)
}

func readJSONFields(c *gin.Context, names ...string) map[string]string {
	out := make(map[string]string, len(names))
	if c == nil || c.Request == nil || c.Request.Body == nil {
		return out
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return out
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	if len(body) == 0 {
		return out
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return out
	}
	for _, name := range names {
		if text, ok := payload[name].(string); ok {
			out[name] = strings.TrimSpace(text)
		}
	}
	return out
}

func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
