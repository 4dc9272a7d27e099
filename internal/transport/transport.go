package transport

import (
	"net/http"
	"time"

	"github.com/hlachaal/24hkids-platform/internal/transport/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Event   *EventHandler
	Booking *BookingHandler
	Family  *FamilyHandler
	Admin   *AdminHandler
}

type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

func InitRoutes(h Handlers, cfg RouterConfig) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(requestid.New())
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	router.Use(middleware.Logger())
	router.Use(middleware.Timeout(cfg.RequestTimeout))

	api := router.Group("/api/v1")
	{
		events := api.Group("/events")
		{
			events.POST("", h.Event.CreateEvent)
			events.GET("", h.Event.GetAllEvents)
			events.GET("/:id", h.Event.GetEvent)
			events.PUT("/:id", h.Event.UpdateEvent)
			events.DELETE("/:id", h.Event.DeleteEvent)
			events.GET("/:id/availability", h.Event.GetAvailability)
			events.GET("/:id/bookings", h.Booking.GetEventBookings)
			events.PATCH("/:id/capacity", h.Event.UpdateCapacity)
			events.PATCH("/:id/status", h.Event.SetStatus)
		}

		bookings := api.Group("/bookings")
		{
			bookings.POST("", h.Booking.CreateBooking)
			bookings.GET("/:id", h.Booking.GetBooking)
			bookings.DELETE("/:id", h.Booking.DeleteBooking)
			bookings.POST("/:id/confirm", h.Booking.ConfirmBooking)
			bookings.PATCH("/:id/status", h.Booking.UpdateBookingStatus)
		}

		guardians := api.Group("/guardians")
		{
			guardians.POST("", h.Family.RegisterGuardian)
			guardians.GET("/:id", h.Family.GetGuardian)
			guardians.PUT("/:id", h.Family.UpdateGuardian)
			guardians.DELETE("/:id", h.Family.DeleteGuardian)
		}

		children := api.Group("/children")
		{
			children.POST("", h.Family.CreateChild)
			children.GET("/:id", h.Family.GetChild)
			children.PUT("/:id", h.Family.UpdateChild)
			children.DELETE("/:id", h.Family.DeleteChild)
			children.GET("/:id/bookings", h.Booking.GetChildBookings)
		}

		admin := api.Group("/admin")
		{
			admin.GET("/audit", h.Admin.ListAuditLog)
			admin.GET("/audit/:target_id", h.Admin.GetAuditTrail)
			admin.GET("/queue/stats", h.Admin.GetQueueStats)
			admin.GET("/dlq", h.Admin.GetFailedTasks)
			admin.POST("/dlq/:task_id/requeue", h.Admin.RequeueFailedTask)
			admin.DELETE("/dlq/:task_id", h.Admin.DeleteFailedTask)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().UTC(),
		})
	})

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = append(cfg.AllowHeaders, ActorHeader, "X-Request-ID")
	cfg.ExposeHeaders = []string{"X-Request-ID"}

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
