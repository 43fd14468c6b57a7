package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/example/deliverydash/pkg/checkout"
	"github.com/example/deliverydash/pkg/models"
	"github.com/example/deliverydash/pkg/repository"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("orderstatus", func(fl validator.FieldLevel) bool {
			s := models.OrderStatus(fl.Field().String())
			return s.ProgressIndex() >= 0 || s == models.StatusCancelled
		})
	}
}

type openCheckoutRequest struct {
	ClientID string `json:"client_id" binding:"required"`
}

type addLineRequest struct {
	ProductID   string              `json:"product_id" binding:"required"`
	Quantity    int                 `json:"quantity" binding:"required,min=1"`
	Ingredients []string            `json:"ingredients"`
	Options     map[string][]string `json:"options"`
}

type quantityRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

type locationRequest struct {
	Lat float64 `json:"lat" binding:"min=-90,max=90"`
	Lng float64 `json:"lng" binding:"min=-180,max=180"`
}

type statusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required,orderstatus"`
}

type assignCourierRequest struct {
	CourierID string `json:"courier_id" binding:"required"`
}

func (g *Gateway) listProducts(c *gin.Context) {
	products, err := g.catalog.ListProducts(c.Request.Context())
	if err != nil {
		g.logger.Error("Failed to list products", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list products"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "total": len(products)})
}

func (g *Gateway) getProduct(c *gin.Context) {
	product, err := g.catalog.Product(c.Request.Context(), c.Param("id"))
	if err != nil {
		g.logger.Error("Failed to get product", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get product"})
		return
	}
	if product == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return
	}
	c.JSON(http.StatusOK, product)
}

func (g *Gateway) openCheckout(c *gin.Context) {
	var req openCheckoutRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := g.checkouts.Open(c.Request.Context(), req.ClientID)
	if err != nil {
		g.logger.Error("Failed to open checkout", zap.String("client_id", req.ClientID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open checkout"})
		return
	}

	// A resumed session lands on tracking, not on the cart.
	if session.Stage() == checkout.StageSuccess && session.OrderID() != "" {
		g.trackers.Track(g.rootCtx, session.OrderID())
	}

	c.JSON(http.StatusOK, sessionView(session))
}

func (g *Gateway) session(c *gin.Context) *checkout.Session {
	s := g.checkouts.Get(c.Param("clientID"))
	if s == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no open checkout for client"})
	}
	return s
}

func (g *Gateway) getCheckout(c *gin.Context) {
	s := g.session(c)
	if s == nil {
		return
	}
	c.JSON(http.StatusOK, sessionView(s))
}

func (g *Gateway) addLine(c *gin.Context) {
	s := g.session(c)
	if s == nil {
		return
	}
	var req addLineRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, err := g.catalog.Product(c.Request.Context(), req.ProductID)
	if err != nil {
		g.logger.Error("Failed to get product", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get product"})
		return
	}
	if product == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return
	}

	line := models.CartLine{
		Product:     *product,
		Quantity:    req.Quantity,
		Ingredients: req.Ingredients,
		Options:     req.Options,
	}
	if err := s.AddLine(line); err != nil {
		respondCheckoutError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView(s))
}

func (g *Gateway) setQuantity(c *gin.Context) {
	s := g.session(c)
	if s == nil {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid line index"})
		return
	}
	var req quantityRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.SetQuantity(index, req.Quantity); err != nil {
		respondCheckoutError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView(s))
}

func (g *Gateway) removeLine(c *gin.Context) {
	s := g.session(c)
	if s == nil {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid line index"})
		return
	}
	if err := s.RemoveLine(index); err != nil {
		respondCheckoutError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView(s))
}

func (g *Gateway) setDetails(c *gin.Context) {
	s := g.session(c)
	if s == nil {
		return
	}
	var details models.DeliveryDetails
	if err := c.BindJSON(&details); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.SetDetails(details); err != nil {
		respondCheckoutError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView(s))
}

// pickLocation resolves a map pick into address fields. Geocoding
// failure is degraded mode: the coordinates stick, the previous text
// fields survive. A geocoder miss falls back to raw coordinates and
// clears the location-derived fields.
func (g *Gateway) pickLocation(c *gin.Context) {
	s := g.session(c)
	if s == nil {
		return
	}
	var req locationRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	location := models.Coordinates{Lat: req.Lat, Lng: req.Lng}
	details := s.Details()

	place, err := g.geocoder.ReverseGeocode(c.Request.Context(), location)
	switch {
	case err != nil:
		g.logger.Warn("Reverse geocode failed", zap.Error(err))
		details.Location = &location
	case place == nil:
		details.Address = fmt.Sprintf("%.6f, %.6f", location.Lat, location.Lng)
		details.Neighborhood = ""
		details.PostalCode = ""
		details.Location = &location
	default:
		details = place.Apply(details, location)
	}

	if err := s.SetDetails(details); err != nil {
		respondCheckoutError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView(s))
}

func (g *Gateway) nextStage(c *gin.Context) {
	s := g.session(c)
	if s == nil {
		return
	}
	// Identity is decided upstream; an Authorization header is the
	// gateway's stand-in for a verified caller.
	s.SetAuthenticated(c.GetHeader("Authorization") != "")
	if err := s.Next(); err != nil {
		respondCheckoutError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView(s))
}

func (g *Gateway) prevStage(c *gin.Context) {
	s := g.session(c)
	if s == nil {
		return
	}
	if err := s.Back(); err != nil {
		respondCheckoutError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView(s))
}

func (g *Gateway) submit(c *gin.Context) {
	s := g.session(c)
	if s == nil {
		return
	}
	order, err := s.Submit(c.Request.Context())
	if err != nil {
		respondCheckoutError(c, err)
		return
	}

	g.trackers.Track(g.rootCtx, order.ID)

	c.JSON(http.StatusCreated, gin.H{
		"order": order.Snapshot(),
		"stage": checkout.StageSuccess,
	})
}

func (g *Gateway) getTracking(c *gin.Context) {
	orderID := c.Param("id")
	if _, err := g.orders.Get(c.Request.Context(), orderID); err != nil {
		respondOrderError(c, g.logger, err)
		return
	}

	session := g.trackers.Track(g.rootCtx, orderID)
	c.JSON(http.StatusOK, session.State())
}

func (g *Gateway) finishOrder(c *gin.Context) {
	orderID := c.Param("id")
	order, err := g.orders.Get(c.Request.Context(), orderID)
	if err != nil {
		respondOrderError(c, g.logger, err)
		return
	}
	if !order.Status.Terminal() {
		c.JSON(http.StatusConflict, gin.H{"error": "order is still in progress"})
		return
	}

	g.trackers.Stop(orderID)
	if err := g.checkouts.Close(c.Request.Context(), order.ClientID); err != nil {
		g.logger.Error("Failed to close checkout", zap.String("client_id", order.ClientID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear active order"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (g *Gateway) updateOrderStatus(c *gin.Context) {
	var req statusRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	order, err := g.orders.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondOrderError(c, g.logger, err)
		return
	}
	c.JSON(http.StatusOK, order.Snapshot())
}

func (g *Gateway) assignCourier(c *gin.Context) {
	var req assignCourierRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	order, err := g.orders.AssignCourier(c.Request.Context(), c.Param("id"), req.CourierID)
	if err != nil {
		respondOrderError(c, g.logger, err)
		return
	}
	c.JSON(http.StatusOK, order.Snapshot())
}

func (g *Gateway) reportCourierLocation(c *gin.Context) {
	var req locationRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fix := models.Coordinates{Lat: req.Lat, Lng: req.Lng}
	if err := g.couriers.SetCourierLocation(c.Request.Context(), c.Param("id"), fix); err != nil {
		g.logger.Error("Failed to store courier location", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store location"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func sessionView(s *checkout.Session) gin.H {
	return gin.H{
		"client_id": s.ClientID(),
		"stage":     s.Stage(),
		"lines":     s.Lines(),
		"details":   s.Details(),
		"totals":    s.Totals(),
		"order_id":  s.OrderID(),
	}
}

// respondCheckoutError maps the checkout error taxonomy onto HTTP:
// gate failures are client errors shown inline, a duplicate submit is
// a conflict, anything else is a retryable upstream failure.
func respondCheckoutError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrIncompleteDetails),
		errors.Is(err, checkout.ErrInvalidLine):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, checkout.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, checkout.ErrWrongStage), errors.Is(err, checkout.ErrSubmitInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "retryable": true})
	}
}

func respondOrderError(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
	case errors.Is(err, repository.ErrIllegalTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.Error("Order operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "order operation failed"})
	}
}
