package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"preventanyl/interfaces"
	"preventanyl/models"
	"preventanyl/utils"
)

const (
	helpNotificationTitle = "Someone needs naloxone"
	helpNotificationBody  = "A person nearby has asked for help. Open Preventanyl to see where."
)

var ErrNoRecipients = errors.New("no recipients")

// ==================== PUSH ====================

// PushClient is the part of the FCM client used for help broadcasts and
// topic membership. *messaging.Client implements it.
type PushClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
	UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
}

// FCMDispatcher broadcasts help alerts to an FCM topic named after the audience.
type FCMDispatcher struct {
	client PushClient
}

func NewFCMDispatcher(client PushClient) *FCMDispatcher {
	return &FCMDispatcher{client: client}
}

func (fd *FCMDispatcher) NotifyAll(ctx context.Context, audience models.Audience, alert models.HelpAlert) (*models.DispatchResult, error) {
	message := &messaging.Message{
		Topic: string(audience),
		Notification: &messaging.Notification{
			Title: helpNotificationTitle,
			Body:  helpNotificationBody,
		},
		Data: helpAlertData(alert),
		Android: &messaging.AndroidConfig{
			Priority: "high",
			TTL:      durationPtr(10 * time.Minute),
			Notification: &messaging.AndroidNotification{
				Sound:     "default",
				ChannelID: "help_requests",
				Color:     "#D32F2F",
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{"apns-priority": "10"},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: helpNotificationTitle,
						Body:  helpNotificationBody,
					},
					Sound: "default",
				},
			},
		},
	}

	messageID, err := fd.client.Send(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("fcm send to %s: %w", audience, err)
	}

	return &models.DispatchResult{
		Channels:   []string{"fcm"},
		MessageIDs: []string{messageID},
		Delivered:  1,
		SentAt:     time.Now(),
	}, nil
}

// Subscribe adds device push tokens to the audience topic.
func (fd *FCMDispatcher) Subscribe(ctx context.Context, audience models.Audience, tokens []string) error {
	resp, err := fd.client.SubscribeToTopic(ctx, tokens, string(audience))
	return topicResult(resp, err)
}

// Unsubscribe removes device push tokens from the audience topic.
func (fd *FCMDispatcher) Unsubscribe(ctx context.Context, audience models.Audience, tokens []string) error {
	resp, err := fd.client.UnsubscribeFromTopic(ctx, tokens, string(audience))
	return topicResult(resp, err)
}

func topicResult(resp *messaging.TopicManagementResponse, err error) error {
	if err != nil {
		return err
	}
	if resp != nil && resp.FailureCount > 0 && resp.SuccessCount == 0 {
		reason := "unknown"
		if len(resp.Errors) > 0 && resp.Errors[0] != nil {
			reason = resp.Errors[0].Reason
		}
		return fmt.Errorf("topic membership failed: %s", reason)
	}
	return nil
}

func helpAlertData(alert models.HelpAlert) map[string]string {
	data := map[string]string{
		"type":        "help_request",
		"deviceId":    alert.DeviceID,
		"requestedAt": alert.RequestedAt.UTC().Format(time.RFC3339),
	}
	if alert.Position != nil {
		data["latitude"] = strconv.FormatFloat(alert.Position.Latitude, 'f', 6, 64)
		data["longitude"] = strconv.FormatFloat(alert.Position.Longitude, 'f', 6, 64)
		data["directionsUrl"] = utils.AppleMapsDirectionsURL(nil, alert.Position.Coordinate())
	}
	return data
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}

// ==================== SMS ====================

// SMSSender sends one text message and returns the provider message ID.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
}

// AngelDirectory lists the phone numbers of angels who opted into SMS.
type AngelDirectory interface {
	SMSRecipients(ctx context.Context) ([]string, error)
}

type TwilioSMSSender struct {
	client *twilio.RestClient
	from   string
}

func NewTwilioSMSSender(accountSID, authToken, from string) *TwilioSMSSender {
	return &TwilioSMSSender{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		from: from,
	}
}

func (ts *TwilioSMSSender) SendSMS(ctx context.Context, to, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(ts.from)
	params.SetBody(body)

	resp, err := ts.client.Api.CreateMessage(params)
	if err != nil {
		return "", err
	}
	if resp.Sid == nil {
		return "", nil
	}
	return *resp.Sid, nil
}

// SMSDispatcher texts every angel in the directory. It succeeds when at
// least one message is accepted.
type SMSDispatcher struct {
	sender    SMSSender
	directory AngelDirectory
}

func NewSMSDispatcher(sender SMSSender, directory AngelDirectory) *SMSDispatcher {
	return &SMSDispatcher{sender: sender, directory: directory}
}

func (sd *SMSDispatcher) NotifyAll(ctx context.Context, audience models.Audience, alert models.HelpAlert) (*models.DispatchResult, error) {
	recipients, err := sd.directory.SMSRecipients(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s recipients: %w", audience, err)
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	body := helpSMSBody(alert)
	result := &models.DispatchResult{Channels: []string{"sms"}}
	var errs []error
	for _, to := range recipients {
		sid, err := sd.sender.SendSMS(ctx, to, body)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		result.Delivered++
		if sid != "" {
			result.MessageIDs = append(result.MessageIDs, sid)
		}
	}

	if result.Delivered == 0 {
		return nil, fmt.Errorf("sms: %w", errors.Join(errs...))
	}
	if len(errs) > 0 {
		logrus.Warnf("SMS help alert failed for %d of %d angels", len(errs), len(recipients))
	}
	result.SentAt = time.Now()
	return result, nil
}

func helpSMSBody(alert models.HelpAlert) string {
	body := "Preventanyl: " + helpNotificationBody
	if alert.Position != nil {
		body += " " + utils.AppleMapsDirectionsURL(nil, alert.Position.Coordinate())
	}
	return body
}

// ==================== COMPOSITION ====================

// MultiDispatcher fans a broadcast out to several channels concurrently and
// succeeds when any channel succeeds.
type MultiDispatcher struct {
	dispatchers []interfaces.Dispatcher
}

func NewMultiDispatcher(dispatchers ...interfaces.Dispatcher) *MultiDispatcher {
	return &MultiDispatcher{dispatchers: dispatchers}
}

func (md *MultiDispatcher) NotifyAll(ctx context.Context, audience models.Audience, alert models.HelpAlert) (*models.DispatchResult, error) {
	type outcome struct {
		result *models.DispatchResult
		err    error
	}

	outcomes := make([]outcome, len(md.dispatchers))
	var wg sync.WaitGroup
	for i, d := range md.dispatchers {
		wg.Add(1)
		go func(i int, d interfaces.Dispatcher) {
			defer wg.Done()
			result, err := d.NotifyAll(ctx, audience, alert)
			outcomes[i] = outcome{result: result, err: err}
		}(i, d)
	}
	wg.Wait()

	combined := &models.DispatchResult{}
	var errs []error
	for _, o := range outcomes {
		if o.err != nil {
			if !errors.Is(o.err, ErrNoRecipients) {
				errs = append(errs, o.err)
			}
			continue
		}
		if o.result == nil {
			continue
		}
		combined.Channels = append(combined.Channels, o.result.Channels...)
		combined.MessageIDs = append(combined.MessageIDs, o.result.MessageIDs...)
		combined.Delivered += o.result.Delivered
		if o.result.SentAt.After(combined.SentAt) {
			combined.SentAt = o.result.SentAt
		}
	}

	if len(combined.Channels) == 0 {
		if len(errs) == 0 {
			return nil, ErrNoRecipients
		}
		return nil, errors.Join(errs...)
	}
	for _, err := range errs {
		logrus.Warnf("Help alert channel failed: %v", err)
	}
	return combined, nil
}

// DispatchRecorder persists dispatch attempts.
type DispatchRecorder interface {
	Create(ctx context.Context, dispatch *models.HelpDispatch) error
}

// RecordingDispatcher records every attempt made through next.
type RecordingDispatcher struct {
	next     interfaces.Dispatcher
	recorder DispatchRecorder
}

func NewRecordingDispatcher(next interfaces.Dispatcher, recorder DispatchRecorder) *RecordingDispatcher {
	return &RecordingDispatcher{next: next, recorder: recorder}
}

func (rd *RecordingDispatcher) NotifyAll(ctx context.Context, audience models.Audience, alert models.HelpAlert) (*models.DispatchResult, error) {
	result, err := rd.next.NotifyAll(ctx, audience, alert)

	record := &models.HelpDispatch{
		DeviceID:    alert.DeviceID,
		UserID:      alert.UserID,
		Audience:    audience,
		Position:    alert.Position,
		Success:     err == nil,
		RequestedAt: alert.RequestedAt,
		CompletedAt: time.Now(),
	}
	if err != nil {
		record.Error = err.Error()
	}
	if result != nil {
		record.Channels = result.Channels
		record.MessageIDs = result.MessageIDs
	}

	// recording must not be cut short by the dispatch deadline
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if recErr := rd.recorder.Create(recordCtx, record); recErr != nil {
		logrus.Errorf("Failed to record help dispatch for %s: %v", alert.DeviceID, recErr)
	}

	return result, err
}

// LogDispatcher only logs. It stands in when no delivery channel is configured.
type LogDispatcher struct{}

func (LogDispatcher) NotifyAll(_ context.Context, audience models.Audience, alert models.HelpAlert) (*models.DispatchResult, error) {
	logrus.WithFields(logrus.Fields{
		"audience": audience,
		"deviceId": alert.DeviceID,
	}).Warn("No notification channel configured, help alert only logged")

	return &models.DispatchResult{
		Channels:  []string{"log"},
		Delivered: 0,
		SentAt:    time.Now(),
	}, nil
}
