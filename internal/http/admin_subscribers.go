package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jmehdipour/subscribers/internal/csvcodec"
	"github.com/jmehdipour/subscribers/internal/http/middleware"
	"github.com/jmehdipour/subscribers/internal/repository"
	"github.com/jmehdipour/subscribers/internal/service/admin"
	"github.com/labstack/echo/v4"
)

const importFormField = "subscribers_csv"

type updateSubscriberReq struct {
	Name  string `json:"name"  form:"name"`
	Email string `json:"email" form:"email"`
}

func parseID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

func listSubscribersHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		subs, err := svc.List(c.Request().Context())
		if err != nil {
			c.Logger().Errorf("list subscribers failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		total, err := svc.Count(c.Request().Context())
		if err != nil {
			c.Logger().Errorf("count subscribers failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"count":   total,
			"results": subs,
		})
	}
}

func getSubscriberHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := parseID(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
		}
		sub, err := svc.Get(c.Request().Context(), id)
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}
		if err != nil {
			c.Logger().Errorf("get subscriber failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, sub)
	}
}

func updateSubscriberHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := parseID(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
		}
		var req updateSubscriberReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		sub, err := svc.Update(c.Request().Context(), id, req.Name, req.Email)
		switch {
		case err == nil:
			return c.JSON(http.StatusOK, sub)
		case errors.Is(err, admin.ErrInvalidInput):
			return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		case errors.Is(err, repository.ErrNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		case errors.Is(err, repository.ErrDuplicate):
			return c.JSON(http.StatusConflict, map[string]string{"error": "email belongs to another subscriber"})
		default:
			c.Logger().Errorf("update subscriber failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
	}
}

func issueDeleteTokenHandler(svc *admin.Service, tokens *middleware.DeleteTokens) echo.HandlerFunc {
	return func(c echo.Context) error {
		opID, ok := middleware.OperatorIDFromCtx(c)
		if !ok || opID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		id, ok := parseID(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
		}
		if _, err := svc.Get(c.Request().Context(), id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
			}
			c.Logger().Errorf("get subscriber failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		tok, exp, err := tokens.Issue(c.Request().Context(), opID, id)
		if err != nil {
			c.Logger().Errorf("issue delete token failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "token store error"})
		}
		return c.JSON(http.StatusCreated, map[string]string{
			"delete_token": tok,
			"expires_at":   exp.UTC().Format(time.RFC3339),
		})
	}
}

// deleteSubscriberHandler runs behind DeleteTokens.Require.
func deleteSubscriberHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := parseID(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
		}
		err := svc.Delete(c.Request().Context(), id)
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}
		if err != nil {
			c.Logger().Errorf("delete subscriber failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func importSubscribersHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		fh, err := c.FormFile(importFormField)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing file field " + importFormField})
		}
		f, err := fh.Open()
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable upload"})
		}
		defer f.Close()

		sum, err := svc.ImportCSV(c.Request().Context(), f)
		if errors.Is(err, csvcodec.ErrHeader) {
			return c.JSON(http.StatusUnprocessableEntity, map[string]any{
				"error":   "invalid_header",
				"message": "CSV must have Name and Email header columns",
			})
		}
		if err != nil {
			c.Logger().Errorf("import failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]any{
				"error":   "import interrupted",
				"summary": sum,
			})
		}
		return c.JSON(http.StatusOK, sum)
	}
}

func exportSubscribersHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		out, err := svc.ExportCSV(c.Request().Context())
		if err != nil {
			c.Logger().Errorf("export failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="subscribers.csv"`)
		return c.Blob(http.StatusOK, "text/csv; charset=utf-8", out)
	}
}
