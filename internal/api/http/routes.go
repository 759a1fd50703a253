package httpapi

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/envhealth/exposure-api/internal/cell"
	"github.com/envhealth/exposure-api/internal/exposure"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *exposure.Service) {
	v1 := app.Group("/api/v1")

	v1.Get("/exposure", func(c *fiber.Ctx) error {
		req, err := parseCoordinateQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		return lookup(c, service, exposure.LookupInput{
			Lat:          req.Lat,
			Lon:          req.Lon,
			Tier:         tierFromHeader(c),
			ForceRefresh: req.ForceRefresh,
		})
	})

	v1.Get("/exposure/cell/:cellId", func(c *fiber.Ctx) error {
		id := c.Params("cellId")
		if id == "" {
			return fiber.NewError(fiber.StatusBadRequest, "cellId path parameter is required")
		}

		force, err := parseForceRefresh(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		return lookup(c, service, exposure.LookupInput{
			CellID:       id,
			Tier:         tierFromHeader(c),
			ForceRefresh: force,
		})
	})
}

func lookup(c *fiber.Ctx, service *exposure.Service, in exposure.LookupInput) error {
	resp, err := service.Lookup(c.UserContext(), in)
	if err != nil {
		var quotaErr *exposure.QuotaError
		switch {
		case errors.Is(err, cell.ErrInvalidInput):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		case errors.As(err, &quotaErr):
			setQuotaHeaders(c, quotaErr.Quota)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": quotaErr.Error(),
				"quota": quotaErr.Quota,
			})
		default:
			return fiber.NewError(fiber.StatusInternalServerError, "failed to assemble exposure data")
		}
	}

	setQuotaHeaders(c, resp.Quota)
	return c.JSON(resp)
}

func setQuotaHeaders(c *fiber.Ctx, q exposure.Quota) {
	c.Set("X-RateLimit-Remaining", strconv.Itoa(q.Remaining))
	c.Set("X-RateLimit-Reset", strconv.FormatInt(q.ResetAt, 10))
}

// tierFromHeader maps the X-User-Tier header onto a plan tier. Unknown or
// missing values fall back to the free tier.
func tierFromHeader(c *fiber.Ctx) exposure.Tier {
	if c.Get("X-User-Tier") == string(exposure.TierPremium) {
		return exposure.TierPremium
	}
	return exposure.TierFree
}

// coordinateQuery holds query parameters for a coordinate lookup.
type coordinateQuery struct {
	Lat          float64 `validate:"gte=-90,lte=90"`
	Lon          float64 `validate:"gte=-180,lte=180"`
	ForceRefresh bool
}

func parseCoordinateQuery(c *fiber.Ctx) (coordinateQuery, error) {
	var q coordinateQuery

	latStr := c.Query("lat")
	lonStr := c.Query("lon")
	if latStr == "" || lonStr == "" {
		return q, errors.New("lat and lon query parameters are required")
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return q, errors.New("lat must be a decimal degree value")
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return q, errors.New("lon must be a decimal degree value")
	}
	q.Lat = lat
	q.Lon = lon

	force, err := parseForceRefresh(c)
	if err != nil {
		return q, err
	}
	q.ForceRefresh = force

	if err := validate.Struct(q); err != nil {
		return q, err
	}

	return q, nil
}

func parseForceRefresh(c *fiber.Ctx) (bool, error) {
	raw := c.Query("force_refresh")
	if raw == "" {
		return false, nil
	}
	force, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.New("force_refresh must be a boolean")
	}
	return force, nil
}
