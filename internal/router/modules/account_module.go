package modules

import (
	"github.com/gin-gonic/gin"

	handlers "github.com/oksasatya/account-management/internal/interface/http"
)

// AccountModule serves the account API under /api/v1/users:
//
//	POST   /register   GET    /          GET    /:id
//	POST   /login      DELETE /          PUT    /:id
//	GET    /search                       DELETE /:id
type AccountModule struct {
	Handler *handlers.AccountHandler
}

func NewAccountModule(h *handlers.AccountHandler) *AccountModule {
	return &AccountModule{Handler: h}
}

func (m *AccountModule) Register(rg *gin.RouterGroup) {
	users := rg.Group("/v1/users")
	users.POST("/register", m.Handler.Register)
	users.POST("/login", m.Handler.Login)
	users.GET("/search", m.Handler.Search)

	users.GET("", m.Handler.ListAll)
	users.DELETE("", m.Handler.DeleteAll)
	users.GET("/:id", m.Handler.FindByID)
	users.PUT("/:id", m.Handler.Update)
	users.DELETE("/:id", m.Handler.DeleteByID)
}
