package tracking

import (
	"github.com/example/deliverydash/pkg/models"
)

type CameraMode string

const (
	CameraFitBounds       CameraMode = "fit_bounds"
	CameraFollowCourier   CameraMode = "follow_courier"
	CameraFocusRestaurant CameraMode = "focus_restaurant"
	CameraFocusCustomer   CameraMode = "focus_customer"
)

// CameraDirective tells the map layer where to look. Cinematic
// directives (accepted, delivered) are one-shot moves; follow and
// fit-bounds are continuous.
type CameraDirective struct {
	Mode    CameraMode          `json:"mode"`
	Center  *models.Coordinates `json:"center,omitempty"`
	Bounds  []models.Coordinates `json:"bounds,omitempty"`
	Zoom    float64             `json:"zoom,omitempty"`
	Pitch   float64             `json:"pitch,omitempty"`
	Padding float64             `json:"padding,omitempty"`
}

func cinematic(status models.OrderStatus) bool {
	return status == models.StatusAccepted || status == models.StatusDelivered
}

// directiveFor maps the current order status and courier fix to a
// camera directive. The fit-bounds fallback is only reached in
// non-cinematic statuses, so it never fights a cinematic transition.
func directiveFor(snap *models.OrderSnapshot, courier *models.Coordinates) CameraDirective {
	if snap == nil {
		return CameraDirective{Mode: CameraFitBounds, Padding: fitPadding}
	}

	switch snap.Status {
	case models.StatusDelivered:
		center := snap.Destination
		if center == nil {
			c := snap.Origin
			center = &c
		}
		return CameraDirective{Mode: CameraFocusCustomer, Center: center, Zoom: 17, Pitch: 60}
	case models.StatusAccepted:
		c := snap.Origin
		return CameraDirective{Mode: CameraFocusRestaurant, Center: &c, Zoom: 16, Pitch: 45}
	case models.StatusOnWay, models.StatusPickedUp:
		if courier != nil {
			return CameraDirective{Mode: CameraFollowCourier, Center: courier, Zoom: 16}
		}
	}

	bounds := []models.Coordinates{snap.Origin}
	if snap.Destination != nil {
		bounds = append(bounds, *snap.Destination)
	}
	if courier != nil {
		bounds = append(bounds, *courier)
	}
	return CameraDirective{Mode: CameraFitBounds, Bounds: bounds, Padding: fitPadding}
}

const fitPadding = 80
