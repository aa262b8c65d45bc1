package telegram

import (
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "adventbot/internal/transport"
)

// classifySendError maps telebot failures onto delivery classes.
//
// Rules:
//   - 401/404 mean a bad token, 409 a competing poller; fatal because
//     every subsequent send would fail the same way
//   - 403 means this recipient is gone (blocked bot, deactivated account,
//     never started the chat); 400 "chat not found" is the same situation
//   - anything else (flood control, network errors, 5xx) is transient;
//     the next tick may succeed
func classifySendError(err error) error {
	if err == nil {
		return nil
	}

	var te *tele.Error
	if errors.As(err, &te) {
		desc := strings.ToLower(te.Description + " " + te.Message)
		switch te.Code {
		case 401:
			// Telegram reports deactivated accounts as 401 too; that is a
			// recipient problem, not a broken token.
			if strings.Contains(desc, "deactivated") {
				return kit.NewDeliveryError(kit.DeliveryRecipient, err)
			}
			return kit.NewDeliveryError(kit.DeliveryFatal, err)
		case 404, 409:
			return kit.NewDeliveryError(kit.DeliveryFatal, err)
		case 403:
			return kit.NewDeliveryError(kit.DeliveryRecipient, err)
		case 400:
			if strings.Contains(desc, "chat not found") || strings.Contains(desc, "user not found") {
				return kit.NewDeliveryError(kit.DeliveryRecipient, err)
			}
		}
	}

	return kit.NewDeliveryError(kit.DeliveryTransient, err)
}
