package security

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadersMiddleware(t *testing.T) {
	tests := []struct {
		name string
		cfg  HeadersConfig
		hsts bool
	}{
		{"Production", HeadersConfig{AllowedOrigins: []string{"https://traffiq.qa"}}, true},
		{"Development", HeadersConfig{IsDevelopment: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(HeadersMiddleware(tt.cfg))
			app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			require.NoError(t, err)

			assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
			assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
			assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "frame-ancestors 'none'")
			assert.Equal(t, tt.hsts, resp.Header.Get("Strict-Transport-Security") != "")
		})
	}
}

func TestBuildConnectSrc(t *testing.T) {
	assert.Equal(t, "", buildConnectSrc(nil))
	assert.Equal(t, "", buildConnectSrc([]string{"*"}))
	assert.Equal(t,
		"https://traffiq.qa wss://traffiq.qa http://localhost:3000 ws://localhost:3000",
		buildConnectSrc([]string{"https://traffiq.qa", "http://localhost:3000"}),
	)
}
