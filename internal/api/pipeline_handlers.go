package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tingzhh2025/aisecurityvision/internal/audit"
	"github.com/tingzhh2025/aisecurityvision/internal/data"
	"github.com/tingzhh2025/aisecurityvision/internal/frame"
	"github.com/tingzhh2025/aisecurityvision/internal/manager"
	"github.com/tingzhh2025/aisecurityvision/internal/middleware"
	"github.com/tingzhh2025/aisecurityvision/internal/model"
	"github.com/tingzhh2025/aisecurityvision/internal/pipeline"
	"github.com/tingzhh2025/aisecurityvision/internal/streamout"
)

// Auditor is the subset of audit.Service the pipeline handlers depend
// on, mirroring internal/cameras.Auditor so both packages can share a
// fake in tests without importing database/sql.
type Auditor interface {
	WriteEvent(ctx context.Context, evt audit.AuditEvent) error
}

// PipelineHandler exposes the configuration-ingress surface (spec §6):
// add_source, remove_source, update_stream_config, add_rule,
// remove_rule and set_polygon_roi, all routed through a
// manager.Manager instance.
type PipelineHandler struct {
	Manager         *manager.Manager
	Auditor         Auditor
	ModelPath       string
	BackendPriority []string
	Dispatcher      *streamout.Dispatcher

	Sources data.VideoSourceRepository // optional; nil disables persistence
	ROIs    data.ROIRepository         // optional
	Rules   data.BehaviorRuleRepository // optional
}

func NewPipelineHandler(mgr *manager.Manager, aud Auditor, modelPath string, backendPriority []string, dispatcher *streamout.Dispatcher) *PipelineHandler {
	return &PipelineHandler{
		Manager:         mgr,
		Auditor:         aud,
		ModelPath:       modelPath,
		BackendPriority: backendPriority,
		Dispatcher:      dispatcher,
	}
}

func (h *PipelineHandler) audit(ctx context.Context, tenantID uuid.UUID, action, result, targetID, targetType string, meta map[string]any) {
	if h.Auditor == nil {
		return
	}
	var raw json.RawMessage
	if meta != nil {
		raw, _ = json.Marshal(meta)
	}
	if err := h.Auditor.WriteEvent(ctx, audit.AuditEvent{
		EventID:    uuid.New(),
		TenantID:   tenantID,
		Action:     action,
		Result:     result,
		TargetID:   targetID,
		TargetType: targetType,
		Metadata:   raw,
		CreatedAt:  time.Now(),
	}); err != nil {
		log.Printf("[PipelineHandler] audit write failed for %s: %v", action, err)
	}
}

// decoderFor returns the frame.Decoder that can service a source's
// protocol. Only onvif is implemented end to end without a CGO codec
// stack; every other protocol is rejected at configuration time rather
// than failing later inside the pipeline.
func decoderFor(src model.VideoSource) (frame.Decoder, error) {
	switch src.Protocol {
	case model.ProtocolONVIF:
		return &frame.OnvifSnapshotDecoder{}, nil
	default:
		return nil, errNoSuitableDecoder(src.Protocol)
	}
}

type unsupportedProtocolError struct{ protocol model.Protocol }

func (e unsupportedProtocolError) Error() string {
	return "pipeline: no decoder available for protocol " + string(e.protocol)
}

func errNoSuitableDecoder(p model.Protocol) error { return unsupportedProtocolError{protocol: p} }

// pathParam reads a named path parameter, handling both chi and the
// stdlib 1.22+ mux.
func pathParam(r *http.Request, name string) string {
	if v := chi.URLParam(r, name); v != "" {
		return v
	}
	return r.PathValue(name)
}

// addSourceRequest is the wire shape for POST .../source.
type addSourceRequest struct {
	URL      string `json:"url"`
	Protocol string `json:"protocol"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	FPS      int    `json:"fps,omitempty"`
}

// AddSource is spec §6's add_source: construct and start one camera's
// pipeline, committing it into the registry only once it has actually
// initialized.
//
// POST /api/v1/cameras/{id}/source
func (h *PipelineHandler) AddSource(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		respondError(w, http.StatusForbidden, "Forbidden")
		return
	}
	cameraID := pathParam(r, "id")
	if cameraID == "" {
		respondError(w, http.StatusBadRequest, "camera id required")
		return
	}

	var req addSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" || req.Protocol == "" {
		respondError(w, http.StatusBadRequest, "url and protocol are required")
		return
	}

	src := model.VideoSource{
		ID:       cameraID,
		URL:      req.URL,
		Protocol: model.Protocol(req.Protocol),
		Width:    req.Width,
		Height:   req.Height,
		FPS:      req.FPS,
		Enabled:  true,
	}
	if req.Username != "" || req.Password != "" {
		src.Credentials = &model.Credentials{Username: req.Username, Password: req.Password}
	}

	decoder, err := decoderFor(src)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.Manager.AddPipeline(r.Context(), pipeline.Config{
		Source:          src,
		Decoder:         decoder,
		ModelPath:       h.ModelPath,
		BackendPriority: h.BackendPriority,
		Dispatcher:      h.Dispatcher,
	})
	if err != nil {
		h.audit(r.Context(), uuid.MustParse(ac.TenantID), "source.add", "failure", cameraID, "video_source", map[string]any{"error": err.Error()})
		switch {
		case errors.Is(err, manager.ErrAlreadyExists):
			respondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, manager.ErrMaxPipelinesExceeded):
			respondError(w, http.StatusPaymentRequired, err.Error())
		case errors.Is(err, manager.ErrPortRangeExhausted):
			respondError(w, http.StatusServiceUnavailable, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	if h.Sources != nil {
		record := &data.VideoSource{
			ID:        uuid.New(),
			TenantID:  uuid.MustParse(ac.TenantID),
			CameraID:  cameraID,
			URL:       req.URL,
			Protocol:  req.Protocol,
			Username:  req.Username,
			Password:  req.Password,
			MJPEGPort: result.MJPEGPort,
			Enabled:   true,
		}
		if err := h.Sources.Create(r.Context(), record); err != nil {
			log.Printf("[PipelineHandler] persist video source %s: %v", cameraID, err)
		}
	}

	h.audit(r.Context(), uuid.MustParse(ac.TenantID), "source.add", "success", cameraID, "video_source", map[string]any{"mjpeg_port": result.MJPEGPort})
	respondJSON(w, http.StatusCreated, map[string]any{
		"camera_id":  cameraID,
		"mjpeg_port": result.MJPEGPort,
		"state":      string(result.State),
	})
}

// RemoveSource is spec §6's remove_source.
//
// DELETE /api/v1/cameras/{id}/source
func (h *PipelineHandler) RemoveSource(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		respondError(w, http.StatusForbidden, "Forbidden")
		return
	}
	cameraID := pathParam(r, "id")
	if cameraID == "" {
		respondError(w, http.StatusBadRequest, "camera id required")
		return
	}

	if err := h.Manager.RemovePipeline(r.Context(), cameraID); err != nil {
		h.audit(r.Context(), uuid.MustParse(ac.TenantID), "source.remove", "failure", cameraID, "video_source", map[string]any{"error": err.Error()})
		if errors.Is(err, manager.ErrNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if h.Sources != nil {
		if err := h.Sources.Delete(r.Context(), uuid.MustParse(ac.TenantID), cameraID); err != nil {
			log.Printf("[PipelineHandler] delete video source %s: %v", cameraID, err)
		}
	}

	h.audit(r.Context(), uuid.MustParse(ac.TenantID), "source.remove", "success", cameraID, "video_source", nil)
	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// Snapshot returns the most recent annotated frame pushed into the
// pipeline's recorder, as a single JPEG. 204 if the pipeline has not
// pushed a frame yet.
//
// GET /api/v1/cameras/{id}/snapshot
func (h *PipelineHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetAuthContext(r.Context()); !ok {
		respondError(w, http.StatusForbidden, "Forbidden")
		return
	}
	cameraID := pathParam(r, "id")
	if cameraID == "" {
		respondError(w, http.StatusBadRequest, "camera id required")
		return
	}

	p, ok := h.Manager.Get(cameraID)
	if !ok {
		respondError(w, http.StatusNotFound, "pipeline not found")
		return
	}

	data, _, ok := p.Recorder().Latest()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(data)
}

// updateStreamConfigRequest is the wire shape for PUT .../stream-config.
type updateStreamConfigRequest struct {
	Protocol    string `json:"protocol,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	FPS         int    `json:"fps,omitempty"`
	BitrateKbps int    `json:"bitrate_kbps,omitempty"`
	Quality     int    `json:"quality,omitempty"`
}

// UpdateStreamConfig is spec §6's update_stream_config: a hot-reload of
// the output fan-out's encode parameters, applied at the next frame
// boundary.
//
// PUT /api/v1/cameras/{id}/stream-config
func (h *PipelineHandler) UpdateStreamConfig(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetAuthContext(r.Context()); !ok {
		respondError(w, http.StatusForbidden, "Forbidden")
		return
	}
	cameraID := pathParam(r, "id")
	p, ok := h.Manager.Get(cameraID)
	if !ok {
		respondError(w, http.StatusNotFound, "pipeline not found")
		return
	}

	var req updateStreamConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Protocol == "rtmp" {
		// RTMP push needs an H.264 encoder; this runtime has no CGO codec
		// available (same constraint that limits decoderFor to onvif), so
		// only the mjpeg output path can be served.
		respondError(w, http.StatusBadRequest, "rtmp output is not supported: no H.264 encoder available, use mjpeg")
		return
	}

	cfg := p.StreamingConfig()
	if req.Protocol != "" {
		cfg.Protocol = req.Protocol
	}
	if req.Width > 0 {
		cfg.Width = req.Width
	}
	if req.Height > 0 {
		cfg.Height = req.Height
	}
	if req.FPS > 0 {
		cfg.FPS = req.FPS
	}
	if req.BitrateKbps > 0 {
		cfg.BitrateKbps = req.BitrateKbps
	}
	if req.Quality > 0 {
		cfg.Quality = req.Quality
	}
	p.SetStreamingConfig(cfg)

	respondJSON(w, http.StatusOK, cfg)
}

// roiRequest is the wire shape for POST/DELETE .../rois.
type roiRequest struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Polygon  []point `json:"polygon"`
	Priority int     `json:"priority,omitempty"`
	Enabled  bool    `json:"enabled"`
	Window   *window `json:"window,omitempty"`
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type window struct {
	StartMinutes int `json:"start_minutes"`
	EndMinutes   int `json:"end_minutes"`
}

// SetPolygonROI is spec §6's set_polygon_roi: attaches or replaces one
// polygon region on the camera's live behavior engine.
//
// POST /api/v1/cameras/{id}/rois
func (h *PipelineHandler) SetPolygonROI(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		respondError(w, http.StatusForbidden, "Forbidden")
		return
	}
	cameraID := pathParam(r, "id")
	p, ok := h.Manager.Get(cameraID)
	if !ok {
		respondError(w, http.StatusNotFound, "pipeline not found")
		return
	}

	var req roiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ID == "" || len(req.Polygon) < 3 {
		respondError(w, http.StatusBadRequest, "id and a polygon with at least 3 points are required")
		return
	}

	roi := &model.ROI{
		ID:       req.ID,
		Name:     req.Name,
		Priority: req.Priority,
		Enabled:  req.Enabled,
	}
	for _, pt := range req.Polygon {
		roi.Polygon = append(roi.Polygon, model.Point{X: pt.X, Y: pt.Y})
	}
	if req.Window != nil {
		roi.Window = &model.TimeWindow{
			Start: time.Duration(req.Window.StartMinutes) * time.Minute,
			End:   time.Duration(req.Window.EndMinutes) * time.Minute,
		}
	}

	p.RemoveROI(roi.ID)
	p.AddROI(roi)

	if h.ROIs != nil {
		polygonJSON, _ := json.Marshal(roi.Polygon)
		var windowJSON json.RawMessage
		if roi.Window != nil {
			windowJSON, _ = json.Marshal(roi.Window)
		}
		record := &data.ROI{
			ID:       uuid.New(),
			TenantID: uuid.MustParse(ac.TenantID),
			CameraID: cameraID,
			Name:     roi.Name,
			Polygon:  polygonJSON,
			Priority: roi.Priority,
			Enabled:  roi.Enabled,
			Window:   windowJSON,
		}
		if err := h.ROIs.Create(r.Context(), record); err != nil {
			log.Printf("[PipelineHandler] persist roi %s/%s: %v", cameraID, roi.ID, err)
		}
	}

	h.audit(r.Context(), uuid.MustParse(ac.TenantID), "roi.set", "success", roi.ID, "roi", map[string]any{"camera_id": cameraID})
	respondJSON(w, http.StatusOK, map[string]string{"status": "set", "id": roi.ID})
}

// RemoveROI detaches a polygon region from the camera's behavior
// engine.
//
// DELETE /api/v1/cameras/{id}/rois/{roi_id}
func (h *PipelineHandler) RemoveROI(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetAuthContext(r.Context()); !ok {
		respondError(w, http.StatusForbidden, "Forbidden")
		return
	}
	cameraID := pathParam(r, "id")
	roiID := pathParam(r, "roi_id")
	p, ok := h.Manager.Get(cameraID)
	if !ok {
		respondError(w, http.StatusNotFound, "pipeline not found")
		return
	}
	p.RemoveROI(roiID)
	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// ruleRequest is the wire shape for POST .../rules. Only the fields
// relevant to Kind need be populated, mirroring model.BehaviorRule's
// tagged-sum-type layout.
type ruleRequest struct {
	ID             string `json:"id"`
	Kind           string `json:"kind"`
	Enabled        bool   `json:"enabled"`
	Confidence     float64 `json:"confidence,omitempty"`
	ROIID          string `json:"roi_id,omitempty"`
	MinDurationMs  int64  `json:"min_duration_ms,omitempty"`
	DwellThresholdMs int64 `json:"dwell_threshold_ms,omitempty"`
	AllowedClasses []int  `json:"allowed_classes,omitempty"`
	CountThreshold int    `json:"count_threshold,omitempty"`
	WindowMs       int64  `json:"window_ms,omitempty"`
	LineA          *point `json:"line_a,omitempty"`
	LineB          *point `json:"line_b,omitempty"`
	Direction      int    `json:"direction,omitempty"`
}

// AddRule is spec §6's add_rule: attaches or replaces one behavior rule
// by id on the camera's live behavior engine.
//
// POST /api/v1/cameras/{id}/rules
func (h *PipelineHandler) AddRule(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		respondError(w, http.StatusForbidden, "Forbidden")
		return
	}
	cameraID := pathParam(r, "id")
	p, ok := h.Manager.Get(cameraID)
	if !ok {
		respondError(w, http.StatusNotFound, "pipeline not found")
		return
	}

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ID == "" || req.Kind == "" {
		respondError(w, http.StatusBadRequest, "id and kind are required")
		return
	}

	rule := &model.BehaviorRule{
		ID:             req.ID,
		Kind:           model.RuleKind(req.Kind),
		Enabled:        req.Enabled,
		Confidence:     req.Confidence,
		ROIID:          req.ROIID,
		MinDuration:    time.Duration(req.MinDurationMs) * time.Millisecond,
		DwellThreshold: time.Duration(req.DwellThresholdMs) * time.Millisecond,
		CountThreshold: req.CountThreshold,
		Window:         time.Duration(req.WindowMs) * time.Millisecond,
		Direction:      model.LineDirection(req.Direction),
	}
	if len(req.AllowedClasses) > 0 {
		rule.AllowedClasses = make(map[int]bool, len(req.AllowedClasses))
		for _, c := range req.AllowedClasses {
			rule.AllowedClasses[c] = true
		}
	}
	if req.LineA != nil {
		rule.LineA = model.Point{X: req.LineA.X, Y: req.LineA.Y}
	}
	if req.LineB != nil {
		rule.LineB = model.Point{X: req.LineB.X, Y: req.LineB.Y}
	}

	p.UpdateRule(rule)

	if h.Rules != nil {
		var allowedJSON, lineJSON json.RawMessage
		if len(req.AllowedClasses) > 0 {
			allowedJSON, _ = json.Marshal(req.AllowedClasses)
		}
		if req.LineA != nil && req.LineB != nil {
			lineJSON, _ = json.Marshal(map[string]any{"a": req.LineA, "b": req.LineB, "direction": req.Direction})
		}
		record := &data.BehaviorRule{
			ID:             uuid.New(),
			TenantID:       uuid.MustParse(ac.TenantID),
			CameraID:       cameraID,
			Kind:           req.Kind,
			Enabled:        req.Enabled,
			Confidence:     req.Confidence,
			ROIID:          req.ROIID,
			MinDurationMs:  req.MinDurationMs,
			DwellThreshold: req.DwellThresholdMs,
			AllowedClasses: allowedJSON,
			CountThreshold: req.CountThreshold,
			WindowMs:       req.WindowMs,
			LineParams:     lineJSON,
		}
		if err := h.Rules.Upsert(r.Context(), record); err != nil {
			log.Printf("[PipelineHandler] persist rule %s/%s: %v", cameraID, rule.ID, err)
		}
	}

	h.audit(r.Context(), uuid.MustParse(ac.TenantID), "rule.add", "success", rule.ID, "behavior_rule", map[string]any{"camera_id": cameraID, "kind": req.Kind})
	respondJSON(w, http.StatusOK, map[string]string{"status": "set", "id": rule.ID})
}

// RemoveRule detaches a behavior rule from the camera's live behavior
// engine.
//
// DELETE /api/v1/cameras/{id}/rules/{rule_id}
func (h *PipelineHandler) RemoveRule(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		respondError(w, http.StatusForbidden, "Forbidden")
		return
	}
	cameraID := pathParam(r, "id")
	ruleID := pathParam(r, "rule_id")
	p, ok := h.Manager.Get(cameraID)
	if !ok {
		respondError(w, http.StatusNotFound, "pipeline not found")
		return
	}
	p.RemoveRule(ruleID)
	h.audit(r.Context(), uuid.MustParse(ac.TenantID), "rule.remove", "success", ruleID, "behavior_rule", map[string]any{"camera_id": cameraID})
	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}
