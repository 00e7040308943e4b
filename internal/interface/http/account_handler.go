package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	accountapp "github.com/oksasatya/account-management/internal/application"
	"github.com/oksasatya/account-management/internal/domain/entity"
	"github.com/oksasatya/account-management/pkg/response"
	"github.com/oksasatya/account-management/pkg/validation"
)

const (
	msgSuccess       = "request is successful"
	msgLoginOK       = "login successful"
	msgLoginFailed   = "login failed, register the account before logging in"
	msgAlreadyExists = "account already exists, choose a different email address or username"
	msgNotFound      = "account does not exist, check the account details"
	msgIDMismatch    = "account id cannot be changed with an update"
)

type AccountHandler struct {
	Svc    *accountapp.Service
	Logger *logrus.Logger
}

func NewAccountHandler(svc *accountapp.Service, logger *logrus.Logger) *AccountHandler {
	if logger == nil {
		logger = svc.Logger
	}
	return &AccountHandler{Svc: svc, Logger: logger}
}

type registerRequest struct {
	Username string `json:"username" binding:"credential"`
	Password string `json:"password" binding:"credential"`
	Email    string `json:"email" binding:"credential"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// updateRequest fields other than id are optional; blank means unchanged.
type updateRequest struct {
	ID       int64  `json:"id"`
	Username string `json:"username" binding:"omitempty,max=255"`
	Password string `json:"password" binding:"omitempty,max=255"`
	Email    string `json:"email" binding:"omitempty,max=255"`
}

type accountResponse struct {
	ID                  int64      `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	LastAuthenticatedAt *time.Time `json:"last_authenticated_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func toResponse(a entity.Account) accountResponse {
	return accountResponse{
		ID:                  a.ID,
		Username:            a.Username,
		Email:               a.Email,
		LastAuthenticatedAt: a.LastAuthenticatedAt,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid id", map[string]string{"id": "must be an integer"})
		return 0, false
	}
	return id, true
}

// fail maps service errors onto statuses. Anything unrecognized is a 500.
func (h *AccountHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, accountapp.ErrIDMismatch):
		response.Error[any](c, http.StatusBadRequest, msgIDMismatch, nil)
	case errors.Is(err, accountapp.ErrInvalidAccount):
		response.Error[any](c, http.StatusBadRequest, "invalid payload", err.Error())
	case errors.Is(err, accountapp.ErrAlreadyExists):
		response.Error[any](c, http.StatusConflict, msgAlreadyExists, err.Error())
	case errors.Is(err, accountapp.ErrNotFound):
		response.Error[any](c, http.StatusNotFound, msgNotFound, nil)
	case errors.Is(err, accountapp.ErrAuthenticationFailed):
		response.Error[any](c, http.StatusNotFound, msgLoginFailed, nil)
	default:
		h.Logger.WithError(err).WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"path":       c.FullPath(),
		}).Error("account request failed")
		response.Error[any](c, http.StatusInternalServerError, "internal server error", nil)
	}
}

func (h *AccountHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	created, err := h.Svc.Register(c.Request.Context(), entity.Account{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Location", "/users/"+strconv.FormatInt(created.ID, 10))
	response.Success(c, http.StatusCreated, toResponse(created), "account registered", nil)
}

func (h *AccountHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	a, err := h.Svc.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, toResponse(a), msgLoginOK, nil)
}

func (h *AccountHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	err := h.Svc.Update(c.Request.Context(), id, entity.Account{
		ID:       req.ID,
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success[any](c, http.StatusOK, nil, msgSuccess, nil)
}

func (h *AccountHandler) FindByID(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	a, found, err := h.Svc.FindByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !found {
		response.Error[any](c, http.StatusNotFound, msgNotFound, nil)
		return
	}
	response.Success(c, http.StatusOK, toResponse(a), msgSuccess, nil)
}

func (h *AccountHandler) ListAll(c *gin.Context) {
	all, err := h.Svc.ListAll(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if len(all) == 0 {
		response.NoContent(c)
		return
	}
	out := make([]accountResponse, 0, len(all))
	for _, a := range all {
		out = append(out, toResponse(a))
	}
	response.Success(c, http.StatusOK, out, msgSuccess, map[string]any{"count": len(out)})
}

func (h *AccountHandler) DeleteByID(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.Svc.DeleteByID(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	response.Success[any](c, http.StatusOK, nil, msgSuccess, nil)
}

func (h *AccountHandler) DeleteAll(c *gin.Context) {
	if err := h.Svc.DeleteAll(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	response.Success[any](c, http.StatusOK, nil, msgSuccess, nil)
}

// Search: GET /users/search?q=john&size=10
func (h *AccountHandler) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		response.Error[any](c, http.StatusBadRequest, "invalid query", map[string]string{"q": "is required"})
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))

	hits, err := h.Svc.Search(c.Request.Context(), q, size)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, hits, msgSuccess, map[string]any{"count": len(hits)})
}
