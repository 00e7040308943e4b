package router

import "github.com/gin-gonic/gin"

// Module mounts one feature's routes on the /api group.
type Module interface {
	Register(rg *gin.RouterGroup)
}
