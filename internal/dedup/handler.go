package dedup

import (
	"offermart/internal/config_handler"
	"offermart/internal/logger"
	"offermart/pkg/models"
)

type Handler = config_handler.Handler

func NewHandler(service *Service, log logger.Logger) *Handler {
	return config_handler.NewHandlerWithUpdater(
		models.EventTypeDedupPolicyUpdated,
		models.ServiceTypeDeduplication,
		service,
		log,
	)
}
