package api

import (
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/datallboy/gotrack/internal/api/controllers"
	"github.com/datallboy/gotrack/internal/app"
	"github.com/datallboy/gotrack/internal/engine"
	"github.com/datallboy/gotrack/internal/manifest"
	"github.com/datallboy/gotrack/internal/progress"
)

func RegisterRoutes(e *echo.Echo, app *app.Context, queue *engine.QueueManager, hub *progress.Hub) {

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			app.Logger.Info("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	batchCtrl := &controllers.BatchController{App: app, Queue: queue, Parser: manifest.NewParser()}
	statusCtrl := &controllers.StatusController{App: app, Queue: queue, Hub: hub}

	g := e.Group("/api")
	g.POST("/batches", batchCtrl.Create)
	g.GET("/batches", batchCtrl.List)
	g.GET("/batches/:id", batchCtrl.Get)
	g.DELETE("/batches/:id", batchCtrl.Cancel)
	g.GET("/history", batchCtrl.History)

	g.GET("/active", statusCtrl.Active)
	g.GET("/events", statusCtrl.Events)
}
