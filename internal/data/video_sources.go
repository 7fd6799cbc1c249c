package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// VideoSource is the persisted configuration for one pipeline's camera
// connection (spec.md §6 Configuration ingress: add_source/remove_source).
type VideoSource struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	CameraID    string    `json:"camera_id"`
	URL         string    `json:"url"`
	Protocol    string    `json:"protocol"`
	Username    string    `json:"username,omitempty"`
	Password    string    `json:"-"`
	MJPEGPort   int       `json:"mjpeg_port"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// VideoSourceRepository persists the camera sources a manager.Manager
// instantiates pipelines for.
type VideoSourceRepository interface {
	Create(ctx context.Context, v *VideoSource) error
	GetByCameraID(ctx context.Context, tenantID uuid.UUID, cameraID string) (*VideoSource, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]*VideoSource, error)
	SetEnabled(ctx context.Context, tenantID uuid.UUID, cameraID string, enabled bool) error
	Delete(ctx context.Context, tenantID uuid.UUID, cameraID string) error
}

type VideoSourceModel struct {
	DB DBTX
}

func (m VideoSourceModel) Create(ctx context.Context, v *VideoSource) error {
	query := `
		INSERT INTO video_sources (tenant_id, camera_id, url, protocol, username, password, mjpeg_port, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`
	return m.DB.QueryRowContext(ctx, query,
		v.TenantID, v.CameraID, v.URL, v.Protocol, v.Username, v.Password, v.MJPEGPort, v.Enabled,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
}

func (m VideoSourceModel) GetByCameraID(ctx context.Context, tenantID uuid.UUID, cameraID string) (*VideoSource, error) {
	query := `
		SELECT id, tenant_id, camera_id, url, protocol, username, password, mjpeg_port, enabled, created_at, updated_at
		FROM video_sources
		WHERE tenant_id = $1 AND camera_id = $2`
	var v VideoSource
	err := m.DB.QueryRowContext(ctx, query, tenantID, cameraID).Scan(
		&v.ID, &v.TenantID, &v.CameraID, &v.URL, &v.Protocol, &v.Username, &v.Password, &v.MJPEGPort, &v.Enabled, &v.CreatedAt, &v.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (m VideoSourceModel) List(ctx context.Context, tenantID uuid.UUID) ([]*VideoSource, error) {
	query := `
		SELECT id, tenant_id, camera_id, url, protocol, username, password, mjpeg_port, enabled, created_at, updated_at
		FROM video_sources
		WHERE tenant_id = $1
		ORDER BY camera_id`
	rows, err := m.DB.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*VideoSource
	for rows.Next() {
		var v VideoSource
		if err := rows.Scan(&v.ID, &v.TenantID, &v.CameraID, &v.URL, &v.Protocol, &v.Username, &v.Password, &v.MJPEGPort, &v.Enabled, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

func (m VideoSourceModel) SetEnabled(ctx context.Context, tenantID uuid.UUID, cameraID string, enabled bool) error {
	query := `UPDATE video_sources SET enabled = $1, updated_at = NOW() WHERE tenant_id = $2 AND camera_id = $3`
	res, err := m.DB.ExecContext(ctx, query, enabled, tenantID, cameraID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (m VideoSourceModel) Delete(ctx context.Context, tenantID uuid.UUID, cameraID string) error {
	query := `DELETE FROM video_sources WHERE tenant_id = $1 AND camera_id = $2`
	res, err := m.DB.ExecContext(ctx, query, tenantID, cameraID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}
