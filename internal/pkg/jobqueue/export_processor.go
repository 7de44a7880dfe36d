package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/taskfoxapp/taskfox/app/models"
	"github.com/taskfoxapp/taskfox/internal/pkg/database"
	"github.com/taskfoxapp/taskfox/internal/pkg/env"
	"github.com/taskfoxapp/taskfox/internal/pkg/export"
)

// accountExport is the JSON document uploaded for a data export request.
type accountExport struct {
	GeneratedAt time.Time        `json:"generated_at"`
	User        exportUser       `json:"user"`
	Todos       []models.Todo    `json:"todos"`
	Invoices    []models.Invoice `json:"invoices"`
}

type exportUser struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// processDataExportJob collects the user's data, uploads it to S3 and mails a
// presigned download link.
func (q *Queue) processDataExportJob(ctx context.Context, job *Job) error {
	payload, err := DataExportJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid data export payload: %w", err)
	}

	db := database.GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	var user models.User
	if err := db.First(&user, payload.UserID).Error; err != nil {
		return fmt.Errorf("failed to load user %d: %w", payload.UserID, err)
	}

	doc := accountExport{
		GeneratedAt: time.Now().UTC(),
		User: exportUser{
			ID:        user.ID,
			Name:      user.Name,
			Email:     user.Email,
			CreatedAt: user.CreatedAt,
		},
	}
	if err := db.Where("user_id = ?", user.ID).Order("position ASC").Find(&doc.Todos).Error; err != nil {
		return fmt.Errorf("failed to load todos: %w", err)
	}
	if err := db.Where("user_id = ?", user.ID).Order("created_at DESC").Find(&doc.Invoices).Error; err != nil {
		return fmt.Errorf("failed to load invoices: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal export: %w", err)
	}

	cfg, err := export.LoadConfig()
	if err != nil {
		return err
	}
	client, err := export.NewClient(cfg)
	if err != nil {
		return err
	}

	objectKey := cfg.GetObjectKey(user.ID, doc.GeneratedAt)
	if err := client.UploadExport(ctx, objectKey, data); err != nil {
		return err
	}

	downloadURL, err := client.PresignDownload(ctx, objectKey)
	if err != nil {
		return err
	}

	emailPayload := EmailJobPayload{
		To:       user.Email,
		Subject:  "Your Taskfox data export is ready",
		Template: EmailTemplateExportReady,
		Data: map[string]string{
			"Name":        user.Name,
			"DownloadURL": downloadURL,
			"BillingURL":  env.GetEnv("PUBLIC_DOMAIN", "http://localhost:3000") + "/dashboard/billing",
		},
	}
	if _, err := q.EnqueueJob(JobTypeEmail, emailPayload.ToMap()); err != nil {
		return fmt.Errorf("failed to enqueue export email: %w", err)
	}

	log.Infof("[Export] Export for user %d uploaded as %s", user.ID, objectKey)
	return nil
}
