package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/wms-platform/stock-engine/internal/application"
	"github.com/wms-platform/stock-engine/internal/domain"
	"github.com/wms-platform/stock-engine/pkg/cloudevents"
	"github.com/wms-platform/stock-engine/pkg/kafka"
	"github.com/wms-platform/stock-engine/pkg/logging"
)

var errUndecodable = errors.New("undecodable command")

// CommandEngine is the command surface the consumer drives
type CommandEngine interface {
	RecordStockMovement(ctx context.Context, cmd application.RecordStockMovementCommand) (*application.MovementResult, error)
	PickStock(ctx context.Context, cmd application.PickStockCommand) (*application.PickStockResult, error)
}

// ReservationCommands manages the reservation lifecycle ahead of picking
type ReservationCommands interface {
	Create(ctx context.Context, reservationID, warehouseID, orderID string, lines []domain.LockLine) (*domain.Reservation, error)
	StartPicking(ctx context.Context, reservationID string) error
	Cancel(ctx context.Context, reservationID, reason string) error
}

// ReservationRequest is the payload of the reservation lifecycle commands
type ReservationRequest struct {
	ReservationID string            `json:"reservationId"`
	WarehouseID   string            `json:"warehouseId,omitempty"`
	OrderID       string            `json:"orderId,omitempty"`
	Lines         []domain.LockLine `json:"lines,omitempty"`
	Reason        string            `json:"reason,omitempty"`
}

// CommandConsumer feeds commands arriving on the commands topic into the engine.
// Duplicate movement and pick deliveries are absorbed by the engine's command claims.
type CommandConsumer struct {
	engine       CommandEngine
	reservations ReservationCommands
	contract     PayloadValidator
	logger       *logging.Logger
}

// NewCommandConsumer creates a command consumer. contract may be nil.
func NewCommandConsumer(engine CommandEngine, reservations ReservationCommands, contract PayloadValidator, logger *logging.Logger) *CommandConsumer {
	return &CommandConsumer{
		engine:       engine,
		reservations: reservations,
		contract:     contract,
		logger:       logger.WithComponent("command-consumer"),
	}
}

// CommandTypes lists the command types the consumer accepts
func CommandTypes() []string {
	return []string{
		cloudevents.RecordStockMovementRequested,
		cloudevents.PickStockRequested,
		cloudevents.CreateReservationRequested,
		cloudevents.StartPickingRequested,
		cloudevents.CancelReservationRequested,
	}
}

// Register subscribes the consumer to every command type
func (c *CommandConsumer) Register(subscriber Subscriber) {
	for _, eventType := range CommandTypes() {
		subscriber.Subscribe(kafka.Topics.StockCommands, eventType, c.Handle)
	}
}

// Handle executes one command. Rejections that a redelivery cannot fix are logged and dropped;
// anything else is returned so the message is redelivered.
func (c *CommandConsumer) Handle(ctx context.Context, ce *cloudevents.WMSCloudEvent) error {
	if c.contract != nil {
		if err := c.contract.ValidateEvent(ce); err != nil {
			return c.drop(ctx, ce, fmt.Errorf("%w: %v", errUndecodable, err))
		}
	}

	var err error
	switch ce.Type {
	case cloudevents.RecordStockMovementRequested:
		err = c.recordMovement(ctx, ce)
	case cloudevents.PickStockRequested:
		err = c.pickStock(ctx, ce)
	case cloudevents.CreateReservationRequested,
		cloudevents.StartPickingRequested,
		cloudevents.CancelReservationRequested:
		err = c.reservation(ctx, ce)
	default:
		err = fmt.Errorf("%w: unknown command type %s", errUndecodable, ce.Type)
	}

	if err == nil {
		return nil
	}
	if errors.Is(err, errUndecodable) {
		return c.drop(ctx, ce, err)
	}

	appErr := application.ClassifyError(err)
	if appErr.Permanent() {
		return c.drop(ctx, ce, appErr)
	}
	return appErr
}

func (c *CommandConsumer) recordMovement(ctx context.Context, ce *cloudevents.WMSCloudEvent) error {
	var cmd application.RecordStockMovementCommand
	if err := ce.DecodeData(&cmd); err != nil {
		return fmt.Errorf("%w: %v", errUndecodable, err)
	}
	fillEnvelopeIDs(ce, &cmd.CommandID, &cmd.CorrelationID)

	result, err := c.engine.RecordStockMovement(ctx, cmd)
	if err != nil {
		return err
	}
	c.logger.WithContext(ctx).Info("Movement recorded",
		"commandId", cmd.CommandID, "movementId", result.MovementID, "streamId", result.StreamID)
	return nil
}

func (c *CommandConsumer) pickStock(ctx context.Context, ce *cloudevents.WMSCloudEvent) error {
	var cmd application.PickStockCommand
	if err := ce.DecodeData(&cmd); err != nil {
		return fmt.Errorf("%w: %v", errUndecodable, err)
	}
	fillEnvelopeIDs(ce, &cmd.CommandID, &cmd.CorrelationID)

	result, err := c.engine.PickStock(ctx, cmd)
	if err != nil {
		return err
	}
	c.logger.WithContext(ctx).Info("Pick recorded",
		"commandId", cmd.CommandID, "movementId", result.MovementID, "deferred", result.Deferred)
	return nil
}

func (c *CommandConsumer) reservation(ctx context.Context, ce *cloudevents.WMSCloudEvent) error {
	var req ReservationRequest
	if err := ce.DecodeData(&req); err != nil {
		return fmt.Errorf("%w: %v", errUndecodable, err)
	}

	switch ce.Type {
	case cloudevents.CreateReservationRequested:
		_, err := c.reservations.Create(ctx, req.ReservationID, req.WarehouseID, req.OrderID, req.Lines)
		return err
	case cloudevents.StartPickingRequested:
		return c.reservations.StartPicking(ctx, req.ReservationID)
	default:
		return c.reservations.Cancel(ctx, req.ReservationID, req.Reason)
	}
}

func (c *CommandConsumer) drop(ctx context.Context, ce *cloudevents.WMSCloudEvent, err error) error {
	c.logger.WithContext(ctx).WithError(err).Warn("Command rejected", "eventId", ce.ID, "eventType", ce.Type)
	c.logger.Audit(ctx, "command.rejected", "command", ce.ID, "", map[string]any{
		"eventType": ce.Type,
		"reason":    err.Error(),
	})
	return nil
}

// fillEnvelopeIDs defaults the command and correlation ids from the envelope
func fillEnvelopeIDs(ce *cloudevents.WMSCloudEvent, commandID, correlationID *string) {
	if *commandID == "" {
		*commandID = ce.CommandID
	}
	if *commandID == "" {
		*commandID = ce.ID
	}
	if *correlationID == "" {
		*correlationID = ce.CorrelationID
	}
}
