package cloudinary

import (
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rajivgeraev/recyclables-api/internal/config"
	"github.com/rajivgeraev/recyclables-api/internal/middleware"
	"github.com/rajivgeraev/recyclables-api/internal/utils"
)

// CloudinaryService выдает подписанные параметры для прямой загрузки фото объявления
type CloudinaryService struct {
	cfg          config.CloudinaryConfig
	jwtService   *utils.JWTService
	logger       *zap.Logger
	uploadFolder string
	uploadPreset string
	now          func() time.Time
}

// NewCloudinaryService создает новый экземпляр CloudinaryService
func NewCloudinaryService(cfg config.CloudinaryConfig, jwtService *utils.JWTService, logger *zap.Logger) *CloudinaryService {
	return &CloudinaryService{
		cfg:          cfg,
		jwtService:   jwtService,
		logger:       logger,
		uploadFolder: cfg.UploadFolder,
		uploadPreset: cfg.UploadPreset,
		now:          time.Now,
	}
}

// UploadParams параметры, которые клиент отправляет в Cloudinary вместе с файлом
type UploadParams struct {
	Timestamp    string `json:"timestamp"`
	Signature    string `json:"signature"`
	APIKey       string `json:"api_key"`
	CloudName    string `json:"cloud_name"`
	Folder       string `json:"folder"`
	UploadPreset string `json:"upload_preset,omitempty"`
	RecyclableID string `json:"recyclable_id"`
}

// Sign подписывает загрузку в папку объявления
func (s *CloudinaryService) Sign(userID uuid.UUID, recyclableID string) (UploadParams, error) {
	params := UploadParams{
		Timestamp:    strconv.FormatInt(s.now().Unix(), 10),
		APIKey:       s.cfg.APIKey,
		CloudName:    s.cfg.CloudName,
		Folder:       path.Join(s.uploadFolder, userID.String(), recyclableID),
		UploadPreset: s.uploadPreset,
		RecyclableID: recyclableID,
	}

	values := url.Values{}
	values.Set("timestamp", params.Timestamp)
	values.Set("folder", params.Folder)
	if params.UploadPreset != "" {
		values.Set("upload_preset", params.UploadPreset)
	}

	signature, err := api.SignParameters(values, s.cfg.APISecret)
	if err != nil {
		return UploadParams{}, err
	}
	params.Signature = signature
	return params, nil
}

// GenerateUploadParams создаёт параметры для загрузки изображений
func (s *CloudinaryService) GenerateUploadParams(c fiber.Ctx) error {
	// Генерируем ID для объявления, если не передан
	recyclableID := c.Query("recyclable_id")
	if recyclableID == "" {
		recyclableID = uuid.NewString()
	} else if _, err := uuid.Parse(recyclableID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid recyclable_id"})
	}

	params, err := s.Sign(middleware.UserID(c), recyclableID)
	if err != nil {
		s.logger.Error("Ошибка подписи параметров загрузки", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to sign upload"})
	}
	return c.JSON(params)
}
