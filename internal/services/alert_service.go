package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"coldchain/internal/db"
	"coldchain/internal/models"
)

// ErrTemplateNotFound is returned when an alert references an unknown template code
var ErrTemplateNotFound = errors.New("alert template not found")

var placeholder = regexp.MustCompile(`\{([^{}]+)\}`)

// AlertStore is the persistence the alert service needs
type AlertStore interface {
	GetTemplate(ctx context.Context, code string) (*models.AlertTemplate, error)
	InsertAlert(ctx context.Context, a *models.Alert) error
}

// AlertNotifier hands a stored alert to outbound delivery
type AlertNotifier interface {
	NotifyAlert(ctx context.Context, a *models.Alert) error
}

// AlertService renders templates and creates alerts
type AlertService struct {
	store       AlertStore
	notifier    AlertNotifier
	defaultLang string
	ackDeadline time.Duration
	now         func() time.Time
	log         *zap.Logger
}

// NewAlertService builds the service. notifier may be nil; ackDeadline <= 0
// leaves alerts without an escalation deadline.
func NewAlertService(store AlertStore, notifier AlertNotifier, defaultLang string, ackDeadline time.Duration, log *zap.Logger) *AlertService {
	return &AlertService{
		store:       store,
		notifier:    notifier,
		defaultLang: defaultLang,
		ackDeadline: ackDeadline,
		now:         time.Now,
		log:         log.Named("alerts"),
	}
}

// Substitute replaces every {key} found in params. Unknown placeholders stay
// as they are.
func Substitute(body string, params map[string]string) string {
	if len(params) == 0 {
		return body
	}
	return placeholder.ReplaceAllStringFunc(body, func(m string) string {
		if v, ok := params[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

// RenderTemplate picks the body for lang, falling back to the default body,
// and substitutes params into it
func RenderTemplate(t *models.AlertTemplate, params map[string]string, lang string) string {
	body := t.Body
	if lang != "" && lang != t.SourceLang {
		if tr := t.Translations[lang]; strings.TrimSpace(tr) != "" {
			body = tr
		}
	}
	return Substitute(body, params)
}

func (s *AlertService) template(ctx context.Context, code string) (*models.AlertTemplate, error) {
	t, err := s.store.GetTemplate(ctx, code)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, code)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Render looks up a template by code and renders it in lang
func (s *AlertService) Render(ctx context.Context, code string, params map[string]string, lang string) (string, error) {
	t, err := s.template(ctx, code)
	if err != nil {
		return "", err
	}
	return RenderTemplate(t, params, lang), nil
}

// NewAlert describes an alert to create from a template
type NewAlert struct {
	TemplateCode  string
	Params        map[string]string
	BatchCode     *string
	DeviceID      string
	Status        models.AlertStatus
	ParameterName *string
	CurrentValue  *float64
	ThresholdLow  *float64
	ThresholdHigh *float64
}

// Create stores an alert rendered from a template. A missing template fails
// the call. Reason falls back to the template code and status to OPEN.
func (s *AlertService) Create(ctx context.Context, req NewAlert) (*models.Alert, error) {
	t, err := s.template(ctx, req.TemplateCode)
	if err != nil {
		return nil, err
	}

	code := req.TemplateCode
	a := &models.Alert{
		TemplateCode:  &code,
		Message:       RenderTemplate(t, req.Params, s.defaultLang),
		Params:        req.Params,
		Reason:        reasonOr(req.Params, code),
		Status:        req.Status,
		BatchCode:     req.BatchCode,
		DeviceID:      req.DeviceID,
		ParameterName: req.ParameterName,
		CurrentValue:  req.CurrentValue,
		ThresholdLow:  req.ThresholdLow,
		ThresholdHigh: req.ThresholdHigh,
	}
	return a, s.save(ctx, a)
}

// CreateLegacy stores an alert carrying a literal message instead of a
// template reference
func (s *AlertService) CreateLegacy(ctx context.Context, message string, params map[string]string, deviceID string, batchCode *string) (*models.Alert, error) {
	a := &models.Alert{
		Message:   message,
		Params:    params,
		Reason:    reasonOr(params, message),
		BatchCode: batchCode,
		DeviceID:  deviceID,
	}
	return a, s.save(ctx, a)
}

func (s *AlertService) save(ctx context.Context, a *models.Alert) error {
	now := s.now().UTC()
	if a.Status == "" {
		a.Status = models.AlertOpen
	}
	if a.Params == nil {
		a.Params = map[string]string{}
	}
	a.CreatedAt = now
	if s.ackDeadline > 0 {
		deadline := now.Add(s.ackDeadline)
		a.Deadline = &deadline
	}

	if err := s.store.InsertAlert(ctx, a); err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	s.log.Info("alert raised",
		zap.Int64("alert_id", a.ID),
		zap.String("device_id", a.DeviceID),
		zap.String("reason", a.Reason))

	if s.notifier != nil {
		if err := s.notifier.NotifyAlert(ctx, a); err != nil {
			s.log.Warn("alert notification not queued", zap.Int64("alert_id", a.ID), zap.Error(err))
		}
	}
	return nil
}

// Localize renders a stored alert in lang. Alerts without a template render
// their literal message with the stored params.
func (s *AlertService) Localize(ctx context.Context, a *models.Alert, lang string) string {
	if a.TemplateCode == nil || *a.TemplateCode == "" {
		return Substitute(a.Message, a.Params)
	}
	text, err := s.Render(ctx, *a.TemplateCode, a.Params, lang)
	if err != nil {
		s.log.Warn("render failed, using stored message", zap.Int64("alert_id", a.ID), zap.Error(err))
		return a.Message
	}
	return text
}

func reasonOr(params map[string]string, fallback string) string {
	if r := strings.TrimSpace(params["reason"]); r != "" {
		return r
	}
	return fallback
}
