package utils

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryTime(t *testing.T) {
	app := fiber.New()
	var from, to *time.Time
	var fromErr, toErr error
	app.Get("/", func(c *fiber.Ctx) error {
		from, fromErr = QueryTime(c, "from", false)
		to, toErr = QueryTime(c, "to", true)
		return nil
	})

	_, err := app.Test(httptest.NewRequest("GET", "/?from=2026-01-01&to=2026-01-31", nil))
	require.NoError(t, err)
	require.NoError(t, fromErr)
	require.NoError(t, toErr)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), *from)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), *to)

	_, err = app.Test(httptest.NewRequest("GET", "/?from=2026-01-01T10:00:00Z", nil))
	require.NoError(t, err)
	require.NoError(t, fromErr)
	assert.Equal(t, 10, from.Hour())
	assert.Nil(t, to)

	_, err = app.Test(httptest.NewRequest("GET", "/?from=yesterday", nil))
	require.NoError(t, err)
	assert.Error(t, fromErr)
}

func TestQueryUint(t *testing.T) {
	app := fiber.New()
	var got uint
	var qerr error
	app.Get("/", func(c *fiber.Ctx) error {
		got, qerr = QueryUint(c, "academy_id")
		return nil
	})

	_, err := app.Test(httptest.NewRequest("GET", "/?academy_id=7", nil))
	require.NoError(t, err)
	require.NoError(t, qerr)
	assert.Equal(t, uint(7), got)

	_, err = app.Test(httptest.NewRequest("GET", "/?academy_id=-1", nil))
	require.NoError(t, err)
	assert.Error(t, qerr)
}
