// Package session implements the per-connection message protocol on top of
// the gateway: subscriptions, location updates and on-demand risk checks.
package session

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/credio/credio-alerts/internal/gateway"
	"github.com/credio/credio-alerts/internal/geo"
	"github.com/credio/credio-alerts/internal/metrics"
	"github.com/credio/credio-alerts/internal/models"
	"github.com/credio/credio-alerts/internal/risk"
)

type Sender interface {
	Send(connID string, msg gateway.Message) error
}

type Catalog interface {
	Get(id string) (models.Disaster, bool)
	Active() []models.Disaster
}

type Registry interface {
	SubscribeToDisaster(connID, disasterID string)
	UnsubscribeFromDisaster(connID, disasterID string)
	UpdateLocationInterest(connID string, p geo.Point)
	LastLocation(connID string) (geo.Point, bool)
	OnDisconnect(connID string)
}

type Deliverer interface {
	DeliverCurrent(ctx context.Context, connID string, d models.Disaster) bool
	Forget(connID string)
}

type LocationStore interface {
	SaveUserLocation(ctx context.Context, loc models.UserLocation) error
	LoadUserLastLocation(ctx context.Context, userID string) (*models.UserLocation, error)
}

type Handler struct {
	sender    Sender
	catalog   Catalog
	registry  Registry
	deliverer Deliverer
	engine    *risk.Engine
	locations LocationStore
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewHandler(
	sender Sender,
	catalog Catalog,
	registry Registry,
	deliverer Deliverer,
	engine *risk.Engine,
	locations LocationStore,
	clock clockwork.Clock,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sender:    sender,
		catalog:   catalog,
		registry:  registry,
		deliverer: deliverer,
		engine:    engine,
		locations: locations,
		clock:     clock,
		logger:    logger,
		metrics:   m,
	}
}

type connectedPayload struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
}

type disasterRequest struct {
	DisasterID string `json:"disasterId"`
}

type locationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// OnConnect restores the user's last stored location as an implicit
// location interest and pushes a fresh assessment.
func (h *Handler) OnConnect(ctx context.Context, c *gateway.Client) {
	identity := c.Identity()
	if !identity.Anonymous && h.locations != nil {
		loc, err := h.locations.LoadUserLastLocation(ctx, identity.UserID)
		if err != nil {
			h.logger.Warn("failed to load last location", "user_id", identity.UserID, "error", err)
		} else if loc != nil {
			h.registry.UpdateLocationInterest(c.ID(), loc.Point)
		}
	}

	h.reply(c, gateway.TypeConnected, connectedPayload{ConnectionID: c.ID(), UserID: identity.UserID})
	h.sendAssessment(c)
}

func (h *Handler) OnMessage(ctx context.Context, c *gateway.Client, msg gateway.Message) {
	if msg.IsInvalid() {
		h.sendError(c, "", "malformed message")
		return
	}

	switch msg.Type {
	case gateway.TypeSubscribeDisaster:
		var req disasterRequest
		if err := msg.Decode(&req); err != nil || req.DisasterID == "" {
			h.sendError(c, msg.Type, "disasterId is required")
			return
		}
		h.subscribeDisaster(ctx, c, req.DisasterID)

	case gateway.TypeUnsubscribeDisaster:
		var req disasterRequest
		if err := msg.Decode(&req); err != nil || req.DisasterID == "" {
			h.sendError(c, msg.Type, "disasterId is required")
			return
		}
		h.registry.UnsubscribeFromDisaster(c.ID(), req.DisasterID)
		h.reply(c, gateway.TypeUnsubscribed, req)

	case gateway.TypeSubscribeLocation:
		var req locationRequest
		if err := msg.Decode(&req); err != nil || req.Latitude == nil || req.Longitude == nil {
			h.sendError(c, msg.Type, "latitude and longitude are required")
			return
		}
		p := geo.Point{Latitude: *req.Latitude, Longitude: *req.Longitude}
		if !p.Valid() {
			h.sendError(c, msg.Type, "coordinates out of range")
			return
		}
		h.updateLocation(ctx, c, p)

	case gateway.TypeAssessRisk:
		h.sendAssessment(c)

	case gateway.TypePing:
		h.reply(c, gateway.TypePong, nil)

	default:
		h.sendError(c, msg.Type, "unknown message type")
	}
}

func (h *Handler) OnDisconnect(_ context.Context, c *gateway.Client) {
	h.registry.OnDisconnect(c.ID())
	h.deliverer.Forget(c.ID())
	h.logger.Info("connection closed", "conn_id", c.ID(), "user_id", c.Identity().UserID)
}

// subscribeDisaster ignores unknown ids. Known ones are subscribed and the
// current version is delivered straight away.
func (h *Handler) subscribeDisaster(ctx context.Context, c *gateway.Client, id string) {
	d, ok := h.catalog.Get(id)
	if !ok {
		h.logger.Debug("subscribe to unknown disaster ignored", "conn_id", c.ID(), "disaster_id", id)
		return
	}

	h.registry.SubscribeToDisaster(c.ID(), id)
	h.reply(c, gateway.TypeSubscribed, disasterRequest{DisasterID: id})
	h.deliverer.DeliverCurrent(ctx, c.ID(), d)
}

func (h *Handler) updateLocation(ctx context.Context, c *gateway.Client, p geo.Point) {
	identity := c.Identity()
	if !identity.Anonymous && h.locations != nil {
		err := h.locations.SaveUserLocation(ctx, models.UserLocation{
			UserID:     identity.UserID,
			Point:      p,
			CapturedAt: h.clock.Now().UTC(),
		})
		if err != nil {
			// the live interest still works without persistence
			h.logger.Warn("failed to save location", "user_id", identity.UserID, "error", err)
		}
	}

	h.registry.UpdateLocationInterest(c.ID(), p)
	h.sendAssessment(c)
}

func (h *Handler) sendAssessment(c *gateway.Client) {
	var loc *geo.Point
	if p, ok := h.registry.LastLocation(c.ID()); ok {
		loc = &p
	}

	assessment := h.engine.Assess(loc, h.catalog.Active())
	h.metrics.RiskAssessments.Inc()
	h.reply(c, gateway.TypeRiskAssessment, assessment)
}

func (h *Handler) sendError(c *gateway.Client, ref, text string) {
	h.send(c, gateway.ErrorMessage(ref, text))
}

func (h *Handler) reply(c *gateway.Client, msgType string, data any) {
	msg, err := gateway.NewMessage(msgType, data)
	if err != nil {
		h.logger.Error("failed to encode reply", "type", msgType, "error", err)
		return
	}
	h.send(c, msg)
}

func (h *Handler) send(c *gateway.Client, msg gateway.Message) {
	if err := h.sender.Send(c.ID(), msg); err != nil {
		h.logger.Debug("reply not delivered", "conn_id", c.ID(), "type", msg.Type, "error", err)
	}
}
