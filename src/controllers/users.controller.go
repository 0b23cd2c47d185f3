package controllers

import (
	"hallpass/src/models"
	"hallpass/src/services"
	"net/http"

	"github.com/gin-gonic/gin"
)

func AuthStatus(ctx *gin.Context) (*models.User, int, error) {
	c, status, err := caller(ctx)
	if err != nil {
		return nil, status, err
	}
	var user *models.User
	err = retry(ctx.Request.Context(), func() (err error) {
		user, err = services.GetPassService().GetUser(ctx.Request.Context(), c.ID)
		return err
	})
	if err != nil {
		status, err := failed("auth status", err)
		return nil, status, err
	}
	return user, http.StatusOK, nil
}

func ListTeachers(ctx *gin.Context) ([]models.User, int, error) {
	if _, status, err := caller(ctx); err != nil {
		return nil, status, err
	}
	var teachers []models.User
	err := retry(ctx.Request.Context(), func() (err error) {
		teachers, err = services.GetPassService().ListTeachers(ctx.Request.Context())
		return err
	})
	if err != nil {
		status, err := failed("list teachers", err)
		return nil, status, err
	}
	return teachers, http.StatusOK, nil
}
