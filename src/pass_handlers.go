package main

import (
	"hallpass/src/controllers"

	"github.com/gin-gonic/gin"
)

func passHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/passes", func(ctx *gin.Context) {
			pass, status, err := controllers.CreatePass(ctx)
			if err != nil {
				errorResponse(ctx, status, err)
				return
			}
			ctx.JSON(status, pass)
		}).
		GET("/passes/my-passes", func(ctx *gin.Context) {
			passes, status, err := controllers.ListMyPasses(ctx)
			if err != nil {
				errorResponse(ctx, status, err)
				return
			}
			ctx.JSON(status, passes)
		}).
		GET("/passes/pending", func(ctx *gin.Context) {
			passes, status, err := controllers.ListPendingPasses(ctx)
			if err != nil {
				errorResponse(ctx, status, err)
				return
			}
			ctx.JSON(status, passes)
		}).
		POST("/passes/verify", func(ctx *gin.Context) {
			result, status, err := controllers.VerifyPass(ctx)
			if err != nil {
				errorResponse(ctx, status, err)
				return
			}
			ctx.JSON(status, result)
		}).
		GET("/passes/:id", func(ctx *gin.Context) {
			pass, status, err := controllers.GetPass(ctx)
			if err != nil {
				errorResponse(ctx, status, err)
				return
			}
			ctx.JSON(status, pass)
		}).
		GET("/passes/:id/history", func(ctx *gin.Context) {
			history, status, err := controllers.GetPassHistory(ctx)
			if err != nil {
				errorResponse(ctx, status, err)
				return
			}
			ctx.JSON(status, history)
		}).
		POST("/passes/:id/approve", func(ctx *gin.Context) {
			decision, status, err := controllers.ApprovePass(ctx)
			if err != nil {
				errorResponse(ctx, status, err)
				return
			}
			ctx.JSON(status, decision)
		}).
		POST("/passes/:id/reject", func(ctx *gin.Context) {
			decision, status, err := controllers.RejectPass(ctx)
			if err != nil {
				errorResponse(ctx, status, err)
				return
			}
			ctx.JSON(status, decision)
		})
	return g
}
