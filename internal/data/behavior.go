package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ROI is the persisted polygon region of interest backing
// internal/behavior.Engine's in-memory ROI set (spec.md §6
// set_polygon_roi).
type ROI struct {
	ID        uuid.UUID       `json:"id"`
	TenantID  uuid.UUID       `json:"tenant_id"`
	CameraID  string          `json:"camera_id"`
	Name      string          `json:"name"`
	Polygon   json.RawMessage `json:"polygon"` // []model.Point
	Priority  int             `json:"priority"`
	Enabled   bool            `json:"enabled"`
	Window    json.RawMessage `json:"window,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type ROIRepository interface {
	Create(ctx context.Context, r *ROI) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	ListByCamera(ctx context.Context, tenantID uuid.UUID, cameraID string) ([]*ROI, error)
}

type ROIModel struct {
	DB DBTX
}

func (m ROIModel) Create(ctx context.Context, r *ROI) error {
	query := `
		INSERT INTO rois (tenant_id, camera_id, name, polygon, priority, enabled, window)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	return m.DB.QueryRowContext(ctx, query,
		r.TenantID, r.CameraID, r.Name, r.Polygon, r.Priority, r.Enabled, nullableJSON(r.Window),
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
}

func (m ROIModel) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	res, err := m.DB.ExecContext(ctx, `DELETE FROM rois WHERE tenant_id = $1 AND id = $2`, tenantID, id)
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

func (m ROIModel) ListByCamera(ctx context.Context, tenantID uuid.UUID, cameraID string) ([]*ROI, error) {
	query := `
		SELECT id, tenant_id, camera_id, name, polygon, priority, enabled, window, created_at, updated_at
		FROM rois WHERE tenant_id = $1 AND camera_id = $2 ORDER BY priority DESC`
	rows, err := m.DB.QueryContext(ctx, query, tenantID, cameraID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ROI
	for rows.Next() {
		var r ROI
		var window sql.NullString
		if err := rows.Scan(&r.ID, &r.TenantID, &r.CameraID, &r.Name, &r.Polygon, &r.Priority, &r.Enabled, &window, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		if window.Valid {
			r.Window = json.RawMessage(window.String)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// BehaviorRule is the persisted form of model.BehaviorRule. Only the
// columns relevant to Kind are populated, mirroring the in-memory tagged
// sum type.
type BehaviorRule struct {
	ID             uuid.UUID       `json:"id"`
	TenantID       uuid.UUID       `json:"tenant_id"`
	CameraID       string          `json:"camera_id"`
	Kind           string          `json:"kind"`
	Enabled        bool            `json:"enabled"`
	Confidence     float64         `json:"confidence"`
	ROIID          string          `json:"roi_id,omitempty"`
	MinDurationMs  int64           `json:"min_duration_ms,omitempty"`
	DwellThreshold int64           `json:"dwell_threshold_ms,omitempty"`
	AllowedClasses json.RawMessage `json:"allowed_classes,omitempty"`
	CountThreshold int             `json:"count_threshold,omitempty"`
	WindowMs       int64           `json:"window_ms,omitempty"`
	LineParams     json.RawMessage `json:"line_params,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type BehaviorRuleRepository interface {
	Upsert(ctx context.Context, r *BehaviorRule) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	ListByCamera(ctx context.Context, tenantID uuid.UUID, cameraID string) ([]*BehaviorRule, error)
}

type BehaviorRuleModel struct {
	DB DBTX
}

func (m BehaviorRuleModel) Upsert(ctx context.Context, r *BehaviorRule) error {
	query := `
		INSERT INTO behavior_rules (
			id, tenant_id, camera_id, kind, enabled, confidence, roi_id,
			min_duration_ms, dwell_threshold_ms, allowed_classes,
			count_threshold, window_ms, line_params
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind, enabled = EXCLUDED.enabled, confidence = EXCLUDED.confidence,
			roi_id = EXCLUDED.roi_id, min_duration_ms = EXCLUDED.min_duration_ms,
			dwell_threshold_ms = EXCLUDED.dwell_threshold_ms, allowed_classes = EXCLUDED.allowed_classes,
			count_threshold = EXCLUDED.count_threshold, window_ms = EXCLUDED.window_ms,
			line_params = EXCLUDED.line_params, updated_at = NOW()
		RETURNING created_at, updated_at`
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return m.DB.QueryRowContext(ctx, query,
		r.ID, r.TenantID, r.CameraID, r.Kind, r.Enabled, r.Confidence, r.ROIID,
		r.MinDurationMs, r.DwellThreshold, nullableJSON(r.AllowedClasses),
		r.CountThreshold, r.WindowMs, nullableJSON(r.LineParams),
	).Scan(&r.CreatedAt, &r.UpdatedAt)
}

func (m BehaviorRuleModel) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	res, err := m.DB.ExecContext(ctx, `DELETE FROM behavior_rules WHERE tenant_id = $1 AND id = $2`, tenantID, id)
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

func (m BehaviorRuleModel) ListByCamera(ctx context.Context, tenantID uuid.UUID, cameraID string) ([]*BehaviorRule, error) {
	query := `
		SELECT id, tenant_id, camera_id, kind, enabled, confidence, roi_id,
			min_duration_ms, dwell_threshold_ms, allowed_classes,
			count_threshold, window_ms, line_params, created_at, updated_at
		FROM behavior_rules WHERE tenant_id = $1 AND camera_id = $2`
	rows, err := m.DB.QueryContext(ctx, query, tenantID, cameraID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*BehaviorRule
	for rows.Next() {
		var r BehaviorRule
		var allowed, line sql.NullString
		if err := rows.Scan(&r.ID, &r.TenantID, &r.CameraID, &r.Kind, &r.Enabled, &r.Confidence, &r.ROIID,
			&r.MinDurationMs, &r.DwellThreshold, &allowed, &r.CountThreshold, &r.WindowMs, &line,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		if allowed.Valid {
			r.AllowedClasses = json.RawMessage(allowed.String)
		}
		if line.Valid {
			r.LineParams = json.RawMessage(line.String)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// BehaviorEvent is the persisted, append-only record of a rule firing
// (spec.md §6 Persistence; immutable once written).
type BehaviorEvent struct {
	ID            uuid.UUID       `json:"id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	CameraID      string          `json:"camera_id"`
	RuleID        string          `json:"rule_id"`
	ROIID         string          `json:"roi_id,omitempty"`
	TrackID       uint32          `json:"track_id"`
	GlobalTrackID string          `json:"global_track_id,omitempty"`
	EventType     string          `json:"event_type"`
	StartTS       time.Time       `json:"start_ts"`
	Confidence    float64         `json:"confidence"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type BehaviorEventRepository interface {
	Insert(ctx context.Context, e *BehaviorEvent) error
	ListByCamera(ctx context.Context, tenantID uuid.UUID, cameraID string, since time.Time, limit int) ([]*BehaviorEvent, error)
}

type BehaviorEventModel struct {
	DB DBTX
}

func (m BehaviorEventModel) Insert(ctx context.Context, e *BehaviorEvent) error {
	query := `
		INSERT INTO behavior_events (
			id, tenant_id, camera_id, rule_id, roi_id, track_id,
			global_track_id, event_type, start_ts, confidence, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return m.DB.QueryRowContext(ctx, query,
		e.ID, e.TenantID, e.CameraID, e.RuleID, e.ROIID, e.TrackID,
		e.GlobalTrackID, e.EventType, e.StartTS, e.Confidence, nullableJSON(e.Metadata),
	).Scan(&e.CreatedAt)
}

func (m BehaviorEventModel) ListByCamera(ctx context.Context, tenantID uuid.UUID, cameraID string, since time.Time, limit int) ([]*BehaviorEvent, error) {
	query := `
		SELECT id, tenant_id, camera_id, rule_id, roi_id, track_id,
			global_track_id, event_type, start_ts, confidence, metadata, created_at
		FROM behavior_events
		WHERE tenant_id = $1 AND camera_id = $2 AND start_ts >= $3
		ORDER BY start_ts DESC
		LIMIT $4`
	rows, err := m.DB.QueryContext(ctx, query, tenantID, cameraID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*BehaviorEvent
	for rows.Next() {
		var e BehaviorEvent
		var meta sql.NullString
		if err := rows.Scan(&e.ID, &e.TenantID, &e.CameraID, &e.RuleID, &e.ROIID, &e.TrackID,
			&e.GlobalTrackID, &e.EventType, &e.StartTS, &e.Confidence, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if meta.Valid {
			e.Metadata = json.RawMessage(meta.String)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
