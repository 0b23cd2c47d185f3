package controllers

import (
	"context"
	"hallpass/src/middlewares"
	"hallpass/src/models"
	"hallpass/src/services"
	"hallpass/src/types"
	"hallpass/src/utils"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	retryAttempts = 3
	retryDelay    = 50 * time.Millisecond
)

// SetRetries sets how often idempotent store calls are attempted on infrastructure errors.
func SetRetries(attempts int, delay time.Duration) {
	if attempts < 1 {
		attempts = 1
	}
	retryAttempts = attempts
	retryDelay = delay
}

func retry(ctx context.Context, fn func() error) error {
	return utils.Retry(ctx, retryAttempts, retryDelay, fn)
}

func caller(ctx *gin.Context) (types.Caller, int, error) {
	c, ok := middlewares.CallerFrom(ctx)
	if !ok {
		return types.Caller{}, http.StatusUnauthorized, types.ErrUnauthenticated
	}
	return c, http.StatusOK, nil
}

func failed(op string, err error) (int, error) {
	status := types.ErrorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("Error on %s: %s\n", op, err.Error())
	}
	return status, err
}

func CreatePass(ctx *gin.Context) (*types.APIResponsePass, int, error) {
	c, status, err := caller(ctx)
	if err != nil {
		return nil, status, err
	}
	var body types.CreatePassRequestBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		return nil, http.StatusBadRequest, err
	}
	view, err := services.GetPassService().CreatePass(ctx.Request.Context(), c, services.NewCreatePassInput(&body))
	if err != nil {
		status, err := failed("create pass", err)
		return nil, status, err
	}
	res := view.Response()
	return &res, http.StatusCreated, nil
}

func ListMyPasses(ctx *gin.Context) ([]types.APIResponsePass, int, error) {
	c, status, err := caller(ctx)
	if err != nil {
		return nil, status, err
	}
	var views []services.PassView
	err = retry(ctx.Request.Context(), func() (err error) {
		views, err = services.GetPassService().ListMine(ctx.Request.Context(), c)
		return err
	})
	if err != nil {
		status, err := failed("list passes", err)
		return nil, status, err
	}
	return services.Responses(views), http.StatusOK, nil
}

func ListPendingPasses(ctx *gin.Context) ([]types.APIResponsePass, int, error) {
	c, status, err := caller(ctx)
	if err != nil {
		return nil, status, err
	}
	var views []services.PassView
	err = retry(ctx.Request.Context(), func() (err error) {
		views, err = services.GetPassService().ListPending(ctx.Request.Context(), c)
		return err
	})
	if err != nil {
		status, err := failed("list pending passes", err)
		return nil, status, err
	}
	return services.Responses(views), http.StatusOK, nil
}

func GetPass(ctx *gin.Context) (*types.APIResponsePass, int, error) {
	c, status, err := caller(ctx)
	if err != nil {
		return nil, status, err
	}
	var params types.PassRequestParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		return nil, http.StatusNotFound, &types.NotFoundError{Resource: "pass", ID: ctx.Param("id")}
	}
	var view *services.PassView
	err = retry(ctx.Request.Context(), func() (err error) {
		view, err = services.GetPassService().GetPass(ctx.Request.Context(), c, params.ID)
		return err
	})
	if err != nil {
		status, err := failed("get pass", err)
		return nil, status, err
	}
	res := view.Response()
	return &res, http.StatusOK, nil
}

func GetPassHistory(ctx *gin.Context) ([]models.PassStatusChange, int, error) {
	c, status, err := caller(ctx)
	if err != nil {
		return nil, status, err
	}
	var params types.PassRequestParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		return nil, http.StatusNotFound, &types.NotFoundError{Resource: "pass", ID: ctx.Param("id")}
	}
	var history []models.PassStatusChange
	err = retry(ctx.Request.Context(), func() (err error) {
		history, err = services.GetPassService().History(ctx.Request.Context(), c, params.ID)
		return err
	})
	if err != nil {
		status, err := failed("pass history", err)
		return nil, status, err
	}
	return history, http.StatusOK, nil
}

// ApprovePass and RejectPass are retried: a repeated decision is a no-op.
func ApprovePass(ctx *gin.Context) (*types.APIResponseDecision, int, error) {
	c, status, err := caller(ctx)
	if err != nil {
		return nil, status, err
	}
	var params types.PassRequestParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		return nil, http.StatusNotFound, &types.NotFoundError{Resource: "pass", ID: ctx.Param("id")}
	}
	var decision *services.Decision
	err = retry(ctx.Request.Context(), func() (err error) {
		decision, err = services.GetPassService().Approve(ctx.Request.Context(), c, params.ID)
		return err
	})
	if err != nil {
		status, err := failed("approve pass", err)
		return nil, status, err
	}
	res := decision.Response()
	return &res, http.StatusOK, nil
}

func RejectPass(ctx *gin.Context) (*types.APIResponseDecision, int, error) {
	c, status, err := caller(ctx)
	if err != nil {
		return nil, status, err
	}
	var params types.PassRequestParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		return nil, http.StatusNotFound, &types.NotFoundError{Resource: "pass", ID: ctx.Param("id")}
	}
	var body types.RejectPassRequestBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		return nil, http.StatusBadRequest, err
	}
	var decision *services.Decision
	err = retry(ctx.Request.Context(), func() (err error) {
		decision, err = services.GetPassService().Reject(ctx.Request.Context(), c, params.ID, body.Reason)
		return err
	})
	if err != nil {
		status, err := failed("reject pass", err)
		return nil, status, err
	}
	res := decision.Response()
	return &res, http.StatusOK, nil
}

func VerifyPass(ctx *gin.Context) (*types.APIResponseVerify, int, error) {
	c, status, err := caller(ctx)
	if err != nil {
		return nil, status, err
	}
	var body types.VerifyPassRequestBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		return nil, http.StatusBadRequest, err
	}
	var result *services.Verification
	err = retry(ctx.Request.Context(), func() (err error) {
		result, err = services.GetPassService().Verify(ctx.Request.Context(), c, body.ID, body.Hash)
		return err
	})
	if err != nil {
		status, err := failed("verify pass", err)
		return nil, status, err
	}
	res := result.Response()
	return &res, http.StatusOK, nil
}
