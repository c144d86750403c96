package recyclable

import (
	"errors"
	"net/url"

	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/recyclables-api/internal/models"
	"github.com/rajivgeraev/recyclables-api/internal/services/feed"
)

// defaultReturnPath страница, куда вернуть пользователя после входа
const defaultReturnPath = "/recyclables"

// AuthRedirect ссылка на страницу входа с возвратом на returnTo
func AuthRedirect(returnTo string) string {
	if returnTo == "" {
		returnTo = defaultReturnPath
	}
	return "/auth?redirect=" + url.QueryEscape(returnTo)
}

// respondError переводит доменную ошибку в HTTP-ответ
func respondError(c fiber.Ctx, err error) error {
	var (
		verr *models.ValidationError
		terr *models.TransitionError
		serr *models.StoreError
	)

	switch {
	case errors.As(err, &verr):
		body := fiber.Map{"error": verr.Message}
		if verr.Field != "" {
			body["field"] = verr.Field
		}
		return c.Status(fiber.StatusBadRequest).JSON(body)
	case errors.Is(err, models.ErrUnauthenticated):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":    "Please sign in to continue",
			"redirect": AuthRedirect(c.Query("return_to")),
		})
	case errors.Is(err, models.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "You do not own this record"})
	case errors.Is(err, models.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	case errors.As(err, &terr):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": terr.Error(),
			"from":  terr.From,
			"to":    terr.To,
		})
	case errors.Is(err, models.ErrInsufficientQuantity):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Not enough quantity left in this listing"})
	case errors.Is(err, models.ErrListingUnavailable):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "This listing is no longer available"})
	case errors.Is(err, models.ErrStatusChanged):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Status was changed by another request, reload and try again"})
	case errors.Is(err, feed.ErrClosed):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &serr):
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": serr.Error()})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
