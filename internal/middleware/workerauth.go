package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v3"
)

// WorkerAuthConfig holds the shared credential the external worker presents.
// The password is configured as a SHA-256 hex hash so the plaintext secret
// never lives in the environment of this process.
type WorkerAuthConfig struct {
	Username     string
	PasswordHash string
}

// WorkerAuth authenticates the analysis worker via HTTP Basic auth.
// The presented password is hashed and compared in constant time against the
// configured hash. Every failure answers a generic 404 so probing clients
// learn nothing about the endpoint.
func WorkerAuth(cfg WorkerAuthConfig) fiber.Handler {
	return func(c fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" || !strings.HasPrefix(strings.ToLower(authHeader), "basic ") {
			return notFound(c)
		}

		decoded, err := base64.StdEncoding.DecodeString(authHeader[6:])
		if err != nil {
			slog.Warn("worker auth: malformed basic credentials", "ip", c.IP())
			return notFound(c)
		}

		username, password, ok := strings.Cut(string(decoded), ":")
		if !ok {
			return notFound(c)
		}

		sum := sha256.Sum256([]byte(password))
		presented := hex.EncodeToString(sum[:])

		userOK := subtle.ConstantTimeCompare([]byte(username), []byte(cfg.Username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(presented), []byte(cfg.PasswordHash)) == 1
		if !userOK || !passOK {
			slog.Warn("worker auth: bad credentials", "ip", c.IP())
			return notFound(c)
		}

		return c.Next()
	}
}

func notFound(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
}
