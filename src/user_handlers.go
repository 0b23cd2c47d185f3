package main

import (
	"hallpass/src/controllers"

	"github.com/gin-gonic/gin"
)

func userHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		GET("/auth/status", func(ctx *gin.Context) {
			user, status, err := controllers.AuthStatus(ctx)
			if err != nil {
				errorResponse(ctx, status, err)
				return
			}
			ctx.JSON(status, user)
		}).
		GET("/users/teachers", func(ctx *gin.Context) {
			teachers, status, err := controllers.ListTeachers(ctx)
			if err != nil {
				errorResponse(ctx, status, err)
				return
			}
			ctx.JSON(status, teachers)
		})
	return g
}
