package providers

import (
	"github.com/samber/do/v2"

	"github.com/alreadydone/alreadydone-server/internal/config"
	"github.com/alreadydone/alreadydone-server/internal/logger"
	"github.com/alreadydone/alreadydone-server/internal/push"
	"github.com/alreadydone/alreadydone-server/internal/service"
)

// ReminderHandle wraps the reminder sweep with shutdown capability.
type ReminderHandle struct {
	*service.ReminderService
}

// Shutdown implements do.Shutdownable.
func (h *ReminderHandle) Shutdown() error {
	h.ReminderService.Stop()
	return nil
}

// ProvideReminders provides the minute-by-minute reminder sweep and starts
// it unless REMINDERS_ENABLED is false.
func ProvideReminders(i do.Injector) (*ReminderHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sender := do.MustInvoke[push.Sender](i)
	log := do.MustInvoke[*logger.Logger](i)

	svc := service.NewReminderService(storeHandle.Store, sender, log.Logger)

	if cfg.Push.RemindersEnabled {
		svc.Start()
	} else {
		log.Info("Reminder sweep disabled")
	}

	return &ReminderHandle{ReminderService: svc}, nil
}
