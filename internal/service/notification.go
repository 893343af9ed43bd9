package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"swiftdrop/internal/domain"
	"swiftdrop/internal/notify"
	"swiftdrop/internal/observability"
)

// Notification types besides ride statuses.
const (
	NotificationPaymentPaid        = "payment.paid"
	NotificationPaymentInitialized = "payment.initialized"
)

const publishTimeout = 5 * time.Second

type template struct {
	title    string
	body     func(r *domain.Ride) string
	channels []notify.Channel
}

func fixed(s string) func(*domain.Ride) string {
	return func(*domain.Ride) string { return s }
}

var (
	pushSMS = []notify.Channel{notify.ChannelPush, notify.ChannelSMS}

	rideTemplates = map[domain.RideStatus]template{
		domain.RideStatusRequested: {"Ride Requested",
			fixed("Your ride request has been received. Searching for a driver..."), pushSMS},
		domain.RideStatusAssigned: {"Driver Assigned",
			fixed("Your driver is on the way."), pushSMS},
		domain.RideStatusAccepted: {"Ride Accepted",
			fixed("A driver has accepted your ride."), pushSMS},
		domain.RideStatusRiderArrived: {"Rider Arrived",
			fixed("Your rider has arrived."), pushSMS},
		domain.RideStatusDriverArrived: {"Driver Arrived",
			fixed("Your driver has arrived."), pushSMS},
		domain.RideStatusInProgress: {"Trip In Progress",
			fixed("Your ride has started. Sit back and enjoy your trip!"), []notify.Channel{notify.ChannelPush}},
		domain.RideStatusCompleted: {"Trip Completed",
			func(r *domain.Ride) string { return fmt.Sprintf("Your trip is complete. Total fare: ₦%d", r.Fare) },
			[]notify.Channel{notify.ChannelPush, notify.ChannelEmail, notify.ChannelSMS}},
		domain.RideStatusCancelled: {"Ride Cancelled",
			fixed("Your ride has been cancelled."), pushSMS},
		domain.RideStatusTimeout: {"Ride Timed Out",
			fixed("No driver accepted your ride in time."), pushSMS},
		domain.RideStatusUncompleted: {"Ride Not Completed",
			fixed("Your ride could not be completed."), pushSMS},
	}
)

// NotificationService is the boundary to the notification pipeline. Events
// are published in the background and failures are only logged.
type NotificationService struct {
	publisher notify.Publisher
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(publisher notify.Publisher, logger *slog.Logger) *NotificationService {
	return &NotificationService{publisher: publisher, logger: logger}
}

// RideStatusChanged emits the lifecycle event for the ride's current status
// to the requester. A completed ride is only announced once it is paid.
func (s *NotificationService) RideStatusChanged(ctx context.Context, ride *domain.Ride) {
	if s == nil {
		return
	}
	if ride.Status == domain.RideStatusCompleted && ride.PaymentStatus != domain.PaymentStatusPaid {
		return
	}
	tpl, ok := rideTemplates[ride.Status]
	if !ok {
		return
	}
	s.Emit(ctx, ride.RequesterID, string(ride.Status), tpl.title, tpl.body(ride), tpl.channels, map[string]any{
		"ride_id":   ride.ID,
		"driver_id": ride.DriverID,
		"status":    ride.Status,
	})
}

// PaymentSettled tells both parties that the ride is paid, and announces
// trip completion if the ride already finished.
func (s *NotificationService) PaymentSettled(ctx context.Context, ride *domain.Ride) {
	if s == nil {
		return
	}
	data := map[string]any{
		"ride_id":        ride.ID,
		"amount":         ride.Fare,
		"payment_method": ride.PaymentMethod,
	}
	body := fmt.Sprintf("Payment of ₦%d received.", ride.Fare)
	s.Emit(ctx, ride.RequesterID, NotificationPaymentPaid, "Payment Successful", body, []notify.Channel{notify.ChannelPush}, data)
	if ride.DriverID != "" {
		s.Emit(ctx, ride.DriverID, NotificationPaymentPaid, "Payment Received", body, []notify.Channel{notify.ChannelPush}, data)
	}
	if ride.Status == domain.RideStatusCompleted {
		s.RideStatusChanged(ctx, ride)
	}
}

// Emit publishes one event in the background. It never fails the caller.
func (s *NotificationService) Emit(ctx context.Context, userID, eventType, title, body string, channels []notify.Channel, data map[string]any) {
	if s == nil || s.publisher == nil || userID == "" {
		return
	}
	event := notify.Event{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      eventType,
		Title:     title,
		Body:      body,
		Channels:  channels,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}

	// The event must outlive the request that triggered it.
	pubCtx := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(pubCtx, publishTimeout)
		defer cancel()

		if err := s.publisher.Publish(ctx, event); err != nil {
			observability.NotificationFailuresTotal.Inc()
			s.logger.Error("publish notification failed",
				slog.String("event_id", event.ID),
				slog.String("type", event.Type),
				slog.String("user_id", event.UserID),
				slog.Any("error", err),
			)
		}
	}()
}

// Wait blocks until every emitted event has been handed to the publisher.
func (s *NotificationService) Wait() {
	if s == nil {
		return
	}
	s.wg.Wait()
}
