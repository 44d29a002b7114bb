package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/onurcolak/event-automation-service/environments"
	"github.com/onurcolak/event-automation-service/internal/domain"
	"github.com/onurcolak/event-automation-service/pkg/gateway"
	"github.com/onurcolak/event-automation-service/pkg/logger"
)

// SentinelMessageID is reported when the gateway accepts a message without
// returning an id.
const SentinelMessageID = "sent"

const genericFailure = "Failed to send message"

type gatewayClient interface {
	SendText(ctx context.Context, number, text string) (*gateway.SendTextResponse, error)
}

// Outcome is the result of one dispatch attempt.
type Outcome struct {
	Status    domain.DispatchStatus
	MessageID string
	Detail    string
	Phone     string
}

type Dispatcher struct {
	gateway gatewayClient
	phone   environments.PhoneConfig
	newID   func() string
}

func New(gw gatewayClient, phone environments.PhoneConfig) *Dispatcher {
	return &Dispatcher{
		gateway: gw,
		phone:   phone,
		newID:   uuid.NewString,
	}
}

// NormalizePhone strips every non-digit and prefixes local numbers:
// 8 or 9 digits get country and area code, 10 or 11 digits get the country
// code. Anything else, including numbers already carrying the country code,
// is returned as digits only.
func NormalizePhone(raw, countryCode, areaCode string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)

	switch len(digits) {
	case 8, 9:
		return countryCode + areaCode + digits
	case 10, 11:
		return countryCode + digits
	default:
		return digits
	}
}

func (d *Dispatcher) Normalize(raw string) string {
	return NormalizePhone(raw, d.phone.CountryCode, d.phone.DefaultAreaCode)
}

// Dispatch sends message to phone once. In test mode the gateway is not
// contacted. Gateway and transport failures are reported in the Outcome,
// never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, phone, message string, testMode bool) Outcome {
	number := d.Normalize(phone)

	if testMode {
		return Outcome{
			Status:    domain.DispatchTest,
			MessageID: "test-" + d.newID(),
			Detail:    fmt.Sprintf("Test mode: would send to %s: %s", number, message),
			Phone:     number,
		}
	}

	if number == "" {
		return Outcome{
			Status: domain.DispatchError,
			Detail: fmt.Sprintf("Invalid phone number %q", phone),
			Phone:  number,
		}
	}

	resp, err := d.gateway.SendText(ctx, number, message)
	if err != nil {
		logger.Errorf("Gateway send to %s failed: %v", number, err)

		detail := genericFailure
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) {
			if apiErr.Detail != "" {
				detail = apiErr.Detail
			}
		} else {
			detail = fmt.Sprintf("%s: %v", genericFailure, err)
		}

		return Outcome{
			Status: domain.DispatchError,
			Detail: detail,
			Phone:  number,
		}
	}

	messageID := SentinelMessageID
	if resp != nil && resp.MessageID != "" {
		messageID = resp.MessageID
	}

	return Outcome{
		Status:    domain.DispatchSuccess,
		MessageID: messageID,
		Detail:    fmt.Sprintf("Message sent to %s", number),
		Phone:     number,
	}
}

