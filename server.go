package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/stationops_backend/config"
	"bitbucket.org/mmdatafocus/stationops_backend/middlewares"
	"bitbucket.org/mmdatafocus/stationops_backend/models"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start listening before dependencies are up; app endpoints return 503
	// until DB and Redis are ready.
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "X-Correlation-Id")
	corsConfig.AddExposeHeaders("Content-Length", "X-Correlation-Id")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.GET("/healthz", healthzHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/signin", signinHandler())

	api := r.Group("/", middlewares.AuthMiddleware())

	admin := api.Group("/", middlewares.RequireRole())
	admin.POST("/users", createUserHandler())

	manager := api.Group("/", middlewares.RequireRole(models.UserRoleManager))
	manager.POST("/stations", createStationHandler())
	manager.PUT("/stations/:id", updateStationHandler())
	manager.DELETE("/stations/:id", deleteStationHandler())
	manager.POST("/contracts", createContractHandler())
	manager.POST("/contracts/:id/prices", addContractPriceHandler())
	manager.POST("/contracts/:id/payments", recordPartnerPaymentHandler())
	manager.POST("/stations/:id/cycles", startCycleHandler())
	manager.POST("/cycles/:id/partner", submitPartnerHandler())
	manager.POST("/cycles/:id/hose", submitHoseHandler())
	manager.POST("/cycles/:id/general", submitGeneralHandler())
	manager.POST("/cycles/:id/abandon", abandonCycleHandler())

	auditor := api.Group("/", middlewares.RequireRole(models.UserRoleAuditor))
	auditor.POST("/stations/:id/control-sums", setControlSumHandler())

	// reads are open to every authenticated role
	api.GET("/stations", listStationsHandler())
	api.GET("/stations/:id", getStationHandler())
	api.GET("/contracts", listContractsHandler())
	api.GET("/contracts/:id", getContractHandler())
	api.GET("/contracts/:id/balance", partnerBalanceHandler())
	api.GET("/stations/:id/next-dates", nextDatesHandler())
	api.GET("/stations/:id/next-date/:subledger", nextDateHandler())
	api.GET("/stations/:id/alignment", alignmentHandler())
	api.GET("/stations/:id/cycles/open", openCycleHandler())
	api.GET("/stations/:id/reports/:subledger/latest", latestReportHandler())
	api.GET("/stations/:id/reports/:subledger/date/:date", reportByDateHandler())
	api.GET("/stations/:id/reports/:subledger", reportsInRangeHandler())
	api.GET("/stations/:id/reconciliation/date/:date", reconciliationHandler())
	api.GET("/stations/:id/reconciliation", reconciliationRangeHandler())

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  readTimeout(),
		WriteTimeout: writeTimeout(),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger logs only requests that ended with gin errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func readTimeout() time.Duration {
	return envSeconds("HTTP_READ_TIMEOUT_SECONDS", 30)
}

func writeTimeout() time.Duration {
	return envSeconds("HTTP_WRITE_TIMEOUT_SECONDS", 60)
}

func envSeconds(key string, fallback int) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return time.Duration(fallback) * time.Second
}
