// Package bridge exposes the stove over MQTT: commands arrive on
// <prefix>/cmd/<name> and the status view is published, retained, on
// <prefix>/status.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"pellet_stove/internal/logger"
	"pellet_stove/internal/service"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
	commandTimeout = 3 * time.Second
)

var errUnknownTopic = errors.New("unknown command topic")

// ErrConnectPending means the broker did not answer within the connect
// timeout. The client keeps retrying in the background.
var ErrConnectPending = errors.New("mqtt connect pending")

// Options configures the broker connection.
type Options struct {
	Broker   string
	ClientID string
	Prefix   string
	Username string
	Password string
	// ConnectTimeout bounds the first connect attempt. Zero means 5s.
	ConnectTimeout time.Duration
}

// Publisher is the subset of mqtt.Client used for outbound messages.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Bridge relays MQTT commands into the services and publishes status.
type Bridge struct {
	opts     Options
	stove    service.Stove
	schedule service.Schedule
	status   service.Monitoring
	log      *logger.Logger

	client mqtt.Client
	pub    Publisher
}

func New(opts Options, svc *service.Service, log *logger.Logger) *Bridge {
	if log == nil {
		log = logger.Nop()
	}
	opts.Prefix = strings.TrimSuffix(opts.Prefix, "/")
	return &Bridge{
		opts:     opts,
		stove:    svc.Stove,
		schedule: svc.Schedule,
		status:   svc.Monitoring,
		log:      log,
	}
}

func (b *Bridge) topic(parts ...string) string {
	return b.opts.Prefix + "/" + strings.Join(parts, "/")
}

// Connect dials the broker with auto-reconnect and subscribes to the
// command topics on every (re)connect.
func (b *Bridge) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.opts.Broker)
	opts.SetClientID(b.opts.ClientID)
	if b.opts.Username != "" {
		opts.SetUsername(b.opts.Username)
		opts.SetPassword(b.opts.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetWill(b.topic("availability"), "offline", 1, true)

	opts.OnConnect = func(c mqtt.Client) {
		b.log.Infow("mqtt_connected", "broker", b.opts.Broker, "client_id", b.opts.ClientID)
		c.Publish(b.topic("availability"), 1, true, "online")
		token := c.Subscribe(b.topic("cmd", "#"), 1, func(_ mqtt.Client, m mqtt.Message) {
			cctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			defer cancel()
			if err := b.handle(cctx, m.Topic(), m.Payload()); err != nil {
				b.log.Warnw("mqtt_command_failed", "topic", m.Topic(), "err", err)
			}
		})
		if token.WaitTimeout(publishTimeout) && token.Error() != nil {
			b.log.Errorw("mqtt_subscribe_failed", "err", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		b.log.Warnw("mqtt_connection_lost", "err", err)
	}

	b.client = mqtt.NewClient(opts)
	b.pub = b.client

	wait := b.opts.ConnectTimeout
	if wait <= 0 {
		wait = connectTimeout
	}
	token := b.client.Connect()
	select {
	case <-token.Done():
	case <-time.After(wait):
		return fmt.Errorf("%w: %s after %s", ErrConnectPending, b.opts.Broker, wait)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", b.opts.Broker, err)
	}
	return nil
}

// Disconnect marks the bridge offline and closes the connection. It also
// stops a connect retry that never succeeded.
func (b *Bridge) Disconnect() {
	if b.client == nil {
		return
	}
	if b.client.IsConnected() {
		t := b.client.Publish(b.topic("availability"), 1, true, "offline")
		t.WaitTimeout(publishTimeout)
	}
	b.client.Disconnect(250)
	b.log.Infow("mqtt_disconnected")
}

// Run publishes the status view every interval until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := b.PublishStatus(ctx); err != nil {
			b.log.Debugw("mqtt_status_publish_failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PublishStatus sends the current status, retained.
func (b *Bridge) PublishStatus(ctx context.Context) error {
	if b.pub == nil {
		return fmt.Errorf("mqtt not connected")
	}
	payload, err := json.Marshal(b.status.Status(ctx))
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	token := b.pub.Publish(b.topic("status"), 0, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish status: timeout")
	}
	return token.Error()
}

// schedulePayload is the JSON body of <prefix>/cmd/schedule.
type schedulePayload struct {
	Index  int  `json:"index"`
	Active bool `json:"active"`
	Day    int  `json:"day"`
	Hour   int  `json:"hour"`
	Minute int  `json:"minute"`
	Power  int  `json:"power"`
}

func (b *Bridge) handle(ctx context.Context, topic string, payload []byte) error {
	name, ok := strings.CutPrefix(topic, b.opts.Prefix+"/cmd/")
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownTopic, topic)
	}
	body := strings.TrimSpace(string(payload))

	switch name {
	case "start":
		return b.stove.Start(ctx)
	case "shutdown":
		return b.stove.Shutdown(ctx)
	case "power":
		n, err := strconv.Atoi(body)
		if err != nil {
			return fmt.Errorf("%w: power %q", service.ErrInvalidInput, body)
		}
		return b.stove.SetPower(ctx, n)
	case "timer":
		n, err := strconv.Atoi(body)
		if err != nil {
			return fmt.Errorf("%w: timer %q", service.ErrInvalidInput, body)
		}
		return b.stove.SetTimer(ctx, n)
	case "scheduler":
		on, err := parseSwitch(body)
		if err != nil {
			return err
		}
		return b.schedule.SetEnabled(ctx, on)
	case "schedule":
		var p schedulePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("%w: schedule payload: %v", service.ErrInvalidInput, err)
		}
		return b.schedule.Apply(ctx, service.ScheduleParams(p))
	}
	return fmt.Errorf("%w: %s", errUnknownTopic, topic)
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "1", "true", "enable", "enabled":
		return true, nil
	case "off", "0", "false", "disable", "disabled":
		return false, nil
	}
	return false, fmt.Errorf("%w: switch value %q", service.ErrInvalidInput, s)
}
