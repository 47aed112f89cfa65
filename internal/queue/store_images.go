package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const imageColumns = `id, job_id, idx, mime, width, height, revised_prompt, file_path, created_at`

// AppendImage inserts a generated image linked to a job.
func (s *Store) AppendImage(ctx context.Context, img GeneratedImage) (*GeneratedImage, error) {
	if img.ID == "" {
		img.ID = uuid.NewString()
	}
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now().UTC()
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO generated_images (`+imageColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		img.ID, img.JobID, img.Index, img.MIME, img.Width, img.Height,
		img.RevisedPrompt, img.FilePath, formatTime(img.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert generated image: %w", err)
	}
	return &img, nil
}

// ImagesForJob returns all generated images for a job, ordered by index.
func (s *Store) ImagesForJob(ctx context.Context, jobID string) ([]GeneratedImage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+imageColumns+` FROM generated_images WHERE job_id = ? ORDER BY idx ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list generated images: %w", err)
	}
	defer rows.Close()

	var images []GeneratedImage
	for rows.Next() {
		var img GeneratedImage
		var createdAt string
		if err := rows.Scan(&img.ID, &img.JobID, &img.Index, &img.MIME, &img.Width, &img.Height,
			&img.RevisedPrompt, &img.FilePath, &createdAt); err != nil {
			return nil, fmt.Errorf("scan generated image: %w", err)
		}
		if img.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse generated image created_at: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// GetImage fetches a single generated image by id.
func (s *Store) GetImage(ctx context.Context, id string) (*GeneratedImage, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM generated_images WHERE id = ?`, id)
	var img GeneratedImage
	var createdAt string
	err := row.Scan(&img.ID, &img.JobID, &img.Index, &img.MIME, &img.Width, &img.Height,
		&img.RevisedPrompt, &img.FilePath, &createdAt)
	if err != nil {
		return nil, err
	}
	if img.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse generated image created_at: %w", err)
	}
	return &img, nil
}
