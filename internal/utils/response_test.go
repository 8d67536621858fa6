package utils

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	apperrors "sayan/internal/errors"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{apperrors.ErrInvalidAmount, fiber.StatusBadRequest, "INVALID_AMOUNT"},
		{apperrors.ErrWalletNotFound, fiber.StatusNotFound, "WALLET_NOT_FOUND"},
		{apperrors.ErrInsufficientFunds, fiber.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"},
		{apperrors.ErrConflict, fiber.StatusConflict, "CONFLICT"},
		{apperrors.ErrWalletFrozen, fiber.StatusConflict, "WALLET_FROZEN"},
		{apperrors.ErrInternal, fiber.StatusInternalServerError, ""},
		{io.ErrUnexpectedEOF, fiber.StatusInternalServerError, ""},
	}

	for _, tc := range cases {
		app := fiber.New()
		err := tc.err
		app.Get("/", func(c *fiber.Ctx) error { return Error(c, err) })

		resp, rerr := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, rerr)
		assert.Equal(t, tc.status, resp.StatusCode, tc.err.Error())

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		if tc.code != "" {
			assert.Equal(t, tc.code, body["code"])
		} else {
			assert.NotContains(t, body, "code")
			assert.Equal(t, "Internal server error", body["error"])
		}
	}
}

func TestGetPagination(t *testing.T) {
	app := fiber.New()
	var got Pagination
	app.Get("/", func(c *fiber.Ctx) error {
		got = GetPagination(c, 20, 100)
		return nil
	})

	_, err := app.Test(httptest.NewRequest("GET", "/?page=3&limit=500", nil))
	require.NoError(t, err)
	assert.Equal(t, 3, got.Page)
	assert.Equal(t, 100, got.Limit)
	assert.Equal(t, 200, got.Offset)

	_, err = app.Test(httptest.NewRequest("GET", "/?page=x&limit=-1", nil))
	require.NoError(t, err)
	assert.Equal(t, 1, got.Page)
	assert.Equal(t, 20, got.Limit)

	got.SetTotal(41)
	assert.Equal(t, 3, got.LastPage)
}
