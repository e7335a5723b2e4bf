package http

import (
	"context"
	"net/http"

	"github.com/jmehdipour/subscribers/internal/model"
	"github.com/labstack/echo/v4"
)

type verificationSettings interface {
	Verification(ctx context.Context) (model.VerificationSettings, error)
}

type verificationSettingsStore interface {
	verificationSettings
	SaveVerification(ctx context.Context, s model.VerificationSettings) error
}

type verificationSettingsReq struct {
	Enabled   bool   `json:"verification_enabled"`
	SiteKey   string `json:"verification_site_key"   validate:"max=255"`
	SecretKey string `json:"verification_secret_key" validate:"max=255"`
}

func getVerificationSettingsHandler(store verificationSettingsStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		vs, err := store.Verification(c.Request().Context())
		if err != nil {
			c.Logger().Errorf("load settings failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "settings error"})
		}
		return c.JSON(http.StatusOK, vs)
	}
}

func putVerificationSettingsHandler(store verificationSettingsStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req verificationSettingsReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if err := c.Validate(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		if req.Enabled && (req.SiteKey == "" || req.SecretKey == "") {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "site and secret keys are required when verification is enabled"})
		}

		vs := model.VerificationSettings(req)
		if err := store.SaveVerification(c.Request().Context(), vs); err != nil {
			c.Logger().Errorf("save settings failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "settings error"})
		}

		saved, err := store.Verification(c.Request().Context())
		if err != nil {
			c.Logger().Errorf("load settings failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "settings error"})
		}
		return c.JSON(http.StatusOK, saved)
	}
}
