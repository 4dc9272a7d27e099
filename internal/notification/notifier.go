package notification

import (
	"context"
	"fmt"

	"github.com/hlachaal/24hkids-platform/internal/database/repository"
	"github.com/hlachaal/24hkids-platform/internal/entity"

	"github.com/sirupsen/logrus"
)

// MessageSender is the part of the Telegram bot the notifier uses.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// TelegramNotifier writes to the guardian of the booked child. Guardians
// without a Telegram id are skipped.
type TelegramNotifier struct {
	sender MessageSender
	store  repository.Store
}

func NewTelegramNotifier(sender MessageSender, store repository.Store) *TelegramNotifier {
	return &TelegramNotifier{sender: sender, store: store}
}

func (n *TelegramNotifier) NotifyDeleted(ctx context.Context, booking *entity.Booking, reason string) error {
	r, err := n.recipient(ctx, booking)
	if err != nil || r == nil {
		return err
	}

	text := fmt.Sprintf("Booking cancelled\n\n%s is no longer booked for \"%s\" on %s.",
		r.child.FullName(), r.event.Title, r.event.StartsAt.Format("02.01.2006 15:04"))
	if reason != "" {
		text += "\nReason: " + reason
	}
	return n.send(ctx, r, booking, text)
}

func (n *TelegramNotifier) NotifyPromoted(ctx context.Context, booking *entity.Booking) error {
	r, err := n.recipient(ctx, booking)
	if err != nil || r == nil {
		return err
	}

	text := fmt.Sprintf("Good news!\n\nA seat opened up: %s is now confirmed for \"%s\" on %s.",
		r.child.FullName(), r.event.Title, r.event.StartsAt.Format("02.01.2006 15:04"))
	return n.send(ctx, r, booking, text)
}

type recipient struct {
	guardian *entity.Guardian
	child    *entity.Child
	event    *entity.Event
}

// recipient resolves who to notify. A booking whose child, guardian or
// event has since been removed yields nil without error.
func (n *TelegramNotifier) recipient(ctx context.Context, booking *entity.Booking) (*recipient, error) {
	child, err := n.store.Children().GetByID(ctx, booking.ChildID)
	if err != nil {
		return nil, skipMissing(err, booking)
	}
	guardian, err := n.store.Guardians().GetByID(ctx, child.GuardianID)
	if err != nil {
		return nil, skipMissing(err, booking)
	}
	if guardian.TelegramID == "" {
		logrus.WithField("guardian_id", guardian.ID).Debug("Guardian has no Telegram id, notification skipped")
		return nil, nil
	}
	event, err := n.store.Events().GetByID(ctx, booking.EventID)
	if err != nil {
		return nil, skipMissing(err, booking)
	}
	return &recipient{guardian: guardian, child: child, event: event}, nil
}

func (n *TelegramNotifier) send(ctx context.Context, r *recipient, booking *entity.Booking, text string) error {
	if err := n.sender.SendMessage(ctx, r.guardian.TelegramID, text); err != nil {
		return fmt.Errorf("failed to notify guardian %d about booking %d: %w", r.guardian.ID, booking.ID, err)
	}
	logrus.WithFields(logrus.Fields{
		"guardian_id": r.guardian.ID,
		"booking_id":  booking.ID,
	}).Info("Telegram notification sent")
	return nil
}

func skipMissing(err error, booking *entity.Booking) error {
	if entity.IsNotFound(err) {
		logrus.WithError(err).WithField("booking_id", booking.ID).Warn("Notification target gone, skipped")
		return nil
	}
	return err
}

// LogNotifier only logs. It is used when no channel is configured.
type LogNotifier struct{}

func (LogNotifier) NotifyDeleted(ctx context.Context, booking *entity.Booking, reason string) error {
	logrus.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"child_id":   booking.ChildID,
		"event_id":   booking.EventID,
		"reason":     reason,
	}).Info("Booking deleted notification")
	return nil
}

func (LogNotifier) NotifyPromoted(ctx context.Context, booking *entity.Booking) error {
	logrus.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"child_id":   booking.ChildID,
		"event_id":   booking.EventID,
	}).Info("Booking promoted notification")
	return nil
}
