// Package gateway exposes the storefront over HTTP: the product
// catalog, the checkout flow, order tracking, and the courier-facing
// edge that feeds the server-owned order state machine.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/example/deliverydash/pkg/checkout"
	"github.com/example/deliverydash/pkg/maps"
	"github.com/example/deliverydash/pkg/models"
	"github.com/example/deliverydash/pkg/tracking"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Catalog is the product read side.
type Catalog interface {
	ListProducts(ctx context.Context) ([]*models.Product, error)
	Product(ctx context.Context, id string) (*models.Product, error)
}

// OrderAdmin is the collaborator-facing write side of the order state
// machine, used by courier apps and the simulator.
type OrderAdmin interface {
	Get(ctx context.Context, orderID string) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID string, next models.OrderStatus) (*models.Order, error)
	AssignCourier(ctx context.Context, orderID, courierID string) (*models.Order, error)
}

type CourierLocations interface {
	SetCourierLocation(ctx context.Context, courierID string, fix models.Coordinates) error
}

type Geocoder interface {
	ReverseGeocode(ctx context.Context, location models.Coordinates) (*maps.Place, error)
}

type Gateway struct {
	checkouts *checkout.Manager
	trackers  *tracking.Manager
	catalog   Catalog
	orders    OrderAdmin
	couriers  CourierLocations
	geocoder  Geocoder
	logger    *zap.Logger
	router    *gin.Engine

	// rootCtx outlives individual requests; tracking sessions started
	// by a request must not die with it.
	rootCtx context.Context
}

func NewGateway(rootCtx context.Context, checkouts *checkout.Manager, trackers *tracking.Manager, catalog Catalog, orders OrderAdmin, couriers CourierLocations, geocoder Geocoder, logger *zap.Logger) *Gateway {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(logger))

	g := &Gateway{
		checkouts: checkouts,
		trackers:  trackers,
		catalog:   catalog,
		orders:    orders,
		couriers:  couriers,
		geocoder:  geocoder,
		logger:    logger,
		router:    router,
		rootCtx:   rootCtx,
	}
	g.setupRoutes()
	return g
}

func (g *Gateway) setupRoutes() {
	// Health check
	g.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 routes
	v1 := g.router.Group("/api/v1")
	{
		products := v1.Group("/products")
		{
			products.GET("", g.listProducts)
			products.GET("/:id", g.getProduct)
		}

		co := v1.Group("/checkout")
		{
			co.POST("", g.openCheckout)
			co.GET("/:clientID", g.getCheckout)
			co.POST("/:clientID/lines", g.addLine)
			co.PUT("/:clientID/lines/:index", g.setQuantity)
			co.DELETE("/:clientID/lines/:index", g.removeLine)
			co.PUT("/:clientID/details", g.setDetails)
			co.POST("/:clientID/location", g.pickLocation)
			co.POST("/:clientID/next", g.nextStage)
			co.POST("/:clientID/back", g.prevStage)
			co.POST("/:clientID/submit", g.submit)
		}

		orders := v1.Group("/orders")
		{
			orders.GET("/:id/tracking", g.getTracking)
			orders.POST("/:id/finish", g.finishOrder)
			orders.PUT("/:id/status", g.updateOrderStatus)
			orders.PUT("/:id/courier", g.assignCourier)
		}

		v1.PUT("/couriers/:id/location", g.reportCourierLocation)
	}
}

func (g *Gateway) Handler() http.Handler {
	return g.router
}

func (g *Gateway) Run(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	g.logger.Info("Gateway starting", zap.String("address", addr))
	return g.router.Run(addr)
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
