// Package httpapi exposes the services over a JSON REST API.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/septivank/meter-reading-service/internal/auth"
	"github.com/septivank/meter-reading-service/internal/db"
	"github.com/septivank/meter-reading-service/internal/logging"
	"github.com/septivank/meter-reading-service/internal/service"
	"go.uber.org/zap"
)

// Deps are the collaborators the router dispatches to.
type Deps struct {
	Users         *service.UserService
	Customers     *service.CustomerService
	Readings      *service.ReadingService
	Reports       *service.ReportService
	FieldReadings *service.FieldReadingService
	Tokens        *auth.TokenManager
	Accounts      auth.UserFinder
	AllowOrigins  []string
	Logger        *zap.Logger
}

type handler struct {
	Deps
}

// NewRouter wires every route onto a fresh gin engine.
func NewRouter(d Deps) *gin.Engine {
	h := &handler{Deps: d}

	r := gin.New()
	r.Use(logging.GinMiddleware(d.Logger))
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.FromGin(c, d.Logger).Error("panic recovered", zap.Any("panic", recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "internal server error"})
	}))
	r.Use(cors.New(corsConfig(d.AllowOrigins)))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "API is healthy"})
	})

	guard := auth.Guard(d.Tokens, d.Accounts)
	managers := auth.RestrictTo(db.RoleAdmin, db.RoleSupervisor)

	users := r.Group("/users")
	users.POST("/register", h.register)
	users.POST("/login", h.login)
	users.Use(guard)
	users.GET("/me", h.me)
	users.PATCH("/updatePassword", h.updatePassword)
	admins := users.Group("", auth.RestrictTo(db.RoleAdmin))
	admins.GET("", h.listUsers)
	admins.GET("/:id", h.getUser)
	admins.PATCH("/:id", h.updateUser)
	admins.DELETE("/:id", h.deleteUser)

	customers := r.Group("/customers", guard)
	customers.GET("/search", h.searchCustomers)
	customers.GET("/within/:distance/center/:latlng/unit/:unit", h.customersWithin)
	customers.GET("", h.listCustomers)
	customers.POST("", h.createCustomer)
	customers.GET("/:id", h.getCustomer)
	customers.PATCH("/:id", h.updateCustomer)
	customers.DELETE("/:id", managers, h.deleteCustomer)
	customers.GET("/:id/meter-readings", h.customerReadings)

	meters := r.Group("/meters", guard)
	meters.GET("/stats", managers, h.readingStats)
	meters.GET("/period/:month/:year", h.readingsByPeriod)
	meters.GET("/reader/:id", h.readingsByReader)
	meters.GET("", h.listReadings)
	meters.POST("", h.createReading)
	meters.GET("/:id", h.getReading)
	meters.PATCH("/:id", h.updateReading)
	meters.DELETE("/:id", managers, h.deleteReading)
	meters.PATCH("/:id/verify", managers, h.verifyReading)

	reports := r.Group("/reports", guard)
	reports.GET("/monthly/:month/:year", h.monthlyReport)
	reports.GET("/yearly/:year", h.yearlyReport)
	reports.GET("/customer/:customerId", h.customerHistory)
	reports.GET("/reader-performance/:month/:year", managers, h.readerPerformance)
	reports.GET("/anomalies/:month/:year", managers, h.anomalies)
	reports.GET("/anomalies/:month/:year/:threshold", managers, h.anomalies)

	field := r.Group("/api/readings")
	field.POST("", h.createFieldReading)
	field.GET("", h.listFieldReadings)
	field.GET("/:id", h.getFieldReading)
	field.PATCH("/:id/status", h.setFieldReadingStatus)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", logging.RequestIDHeader},
		ExposeHeaders: []string{logging.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}
