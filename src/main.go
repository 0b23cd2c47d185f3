package main

import (
	"context"
	"hallpass/src/boot"
	"hallpass/src/config"
	"hallpass/src/controllers"
	"hallpass/src/lib"
	"hallpass/src/middlewares"
	"hallpass/src/services"
	"hallpass/src/types"
	"hallpass/src/utils"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"regexp"
	"strconv"
	"time"

	"github.com/covalenthq/lumberjack"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	apiPrefix string = "/api"
)

var isoTimeValidatorFunc validator.Func = func(fl validator.FieldLevel) bool {
	value, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	_, err := utils.ParsePassTime(value, time.UTC)
	return err == nil
}

var passTypeValidatorFunc validator.Func = func(fl validator.FieldLevel) bool {
	value, ok := fl.Field().Interface().(string)
	return ok && types.PassType(value).Valid()
}

func registerValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("isotime", isoTimeValidatorFunc)
		v.RegisterValidation("passtype", passTypeValidatorFunc)
	}
}

func setupRouter() *gin.Engine {
	router := gin.Default()
	router.GET("/", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, "ok")
	})
	return router
}

func maintenanceModeMiddleware(g *gin.Engine) *gin.Engine {
	g.Use(func(ctx *gin.Context) {
		mm := os.Getenv("MAINTENANCE_MODE")
		on, err := strconv.ParseBool(mm)
		if err == nil && on {
			log.Println("server is under maintenance")
			ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "server is under maintenance"})
			return
		}
	})
	return g
}

func apiGroup(g *gin.Engine, secret []byte, users middlewares.UserLookup) *gin.RouterGroup {
	api := g.Group(apiPrefix)
	api.Use(middlewares.AuthMiddleware(secret, users))
	return api
}

func apiRoutes(g *gin.Engine, secret []byte, users middlewares.UserLookup) *gin.RouterGroup {
	api := apiGroup(g, secret, users)
	userHandlers(api)
	passHandlers(api)
	return api
}

func errorResponse(ctx *gin.Context, status int, err error) {
	ctx.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func initLogger() {
	cwd, _ := os.Getwd()
	logsDir := path.Join(cwd, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		log.Printf("Could not create logs directory: %s\n", err.Error())
		return
	}
	gin.ForceConsoleColor()

	f, err := os.Create(path.Join(logsDir, "api.log"))
	if err == nil {
		gin.DefaultWriter = io.MultiWriter(f, os.Stdout)
	}
	log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   path.Join(logsDir, "server.log"),
		MaxSize:    500,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
	}))
}

func useCors(router *gin.Engine, cfg *config.Config) {
	if cfg.Env == "local" {
		cc := cors.DefaultConfig()
		cc.AllowAllOrigins = false
		cc.AllowOriginFunc = func(origin string) bool { return true }
		cc.AllowHeaders = append(cc.AllowHeaders, "Authorization")
		cc.AllowCredentials = true
		router.Use(cors.New(cc))
		return
	}
	cc := cors.DefaultConfig()
	cc.AllowMethods = append(cc.AllowMethods, "GET", "POST", "HEAD")
	cc.AllowHeaders = append(cc.AllowHeaders, "Origin", "Authorization")
	cc.AllowOriginFunc = func(origin string) bool {
		if cfg.AppHost == "" {
			return false
		}
		match, _ := regexp.MatchString("^"+regexp.QuoteMeta(cfg.AppHost)+"$", origin)
		return match
	}
	// the front-end sends the session cookie with credentials: "include"
	cc.AllowCredentials = true
	cc.AllowAllOrigins = false
	router.Use(cors.New(cc))
}

func main() {
	apiEnv := os.Getenv("API_ENV")
	if apiEnv == "" || apiEnv == "local" {
		cwd, _ := os.Getwd()
		if err := godotenv.Load(path.Join(cwd, ".env")); err != nil {
			log.Printf("No .env file loaded: %s\n", err.Error())
		}
	}
	initLogger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %s", err.Error())
	}
	if len(cfg.JWTSecret) == 0 {
		log.Fatalln("JWT_SECRET is required")
	}

	lib.Configure(cfg)

	ctx := context.Background()
	store := boot.InitStore(cfg)
	if cfg.SeedUsersFile != "" {
		if _, err := boot.SeedUsers(ctx, store, cfg.SeedUsersFile); err != nil {
			log.Fatalf("Error seeding users: %s", err.Error())
		}
	}
	signer, err := boot.InitSigner(ctx, cfg)
	if err != nil {
		log.Fatalf("Error loading pass token secret: %s", err.Error())
	}
	lib.PingRedis(ctx)
	svc := boot.InitService(cfg, store, signer)
	controllers.SetRetries(cfg.StoreRetries, 50*time.Millisecond)

	boot.InitScheduler(cfg, svc)
	defer boot.StopScheduler()
	go boot.InitBroker(ctx, cfg)
	defer lib.CloseKafkaProducer()

	router := setupRouter()
	useCors(router, cfg)
	registerValidators()
	router = maintenanceModeMiddleware(router)
	apiRoutes(router, cfg.JWTSecret, services.GetPassService())

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %s", err)
	}
}
