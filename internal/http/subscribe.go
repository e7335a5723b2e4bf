package http

import (
	"net/http"

	"github.com/jmehdipour/subscribers/internal/service/subscription"
	"github.com/labstack/echo/v4"
)

// subscribeReq accepts both the HTML form post and JSON.
type subscribeReq struct {
	Name  string `json:"name"  form:"name"`
	Email string `json:"email" form:"email"`
	Token string `json:"verification_token" form:"g-recaptcha-response"`
}

type subscribeResp struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

const msgServerError = "Something went wrong. Please try again later."

func subscribeHandler(svc *subscription.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req subscribeReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, subscribeResp{Message: subscription.MsgInvalidInput})
		}

		res, err := svc.Submit(c.Request().Context(), subscription.Submission{
			Name:     req.Name,
			Email:    req.Email,
			Token:    req.Token,
			RemoteIP: c.RealIP(),
		})
		if err != nil {
			c.Logger().Errorf("submit failed: %v", err)
			return c.JSON(http.StatusInternalServerError, subscribeResp{Message: msgServerError})
		}

		switch {
		case res.Accepted:
			return c.JSON(http.StatusOK, subscribeResp{Success: true, Message: res.Message})
		case res.Reason == subscription.ReasonVerificationFailed:
			return c.JSON(http.StatusForbidden, subscribeResp{Message: res.Message})
		default:
			return c.JSON(http.StatusUnprocessableEntity, subscribeResp{Message: res.Message})
		}
	}
}

// subscribeConfigHandler tells the public form whether to render the challenge widget.
func subscribeConfigHandler(settings verificationSettings) echo.HandlerFunc {
	return func(c echo.Context) error {
		vs, err := settings.Verification(c.Request().Context())
		if err != nil {
			c.Logger().Errorf("load settings failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "settings error"})
		}
		return c.JSON(http.StatusOK, vs.Public())
	}
}
