package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/he1nht3t/envmonitoring-web/internal/config"
)

var errStopped = errors.New("mqtt client stopped")

// clientOptions holds the connection settings shared by Subscriber and
// Publisher.
func clientOptions(cfg config.MQTT, logger *slog.Logger, onConnect func(), onLost func()) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Info("mqtt connected", "broker", cfg.Broker, "port", cfg.Port, "client_id", cfg.ClientID)
		onConnect()
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
		onLost()
	})
	return opts
}

// waitToken blocks until tok completes, ctx is done or stop is closed.
// With ConnectRetry the connect token may never complete on its own.
func waitToken(ctx context.Context, stop <-chan struct{}, tok mqtt.Token) error {
	const poll = 200 * time.Millisecond
	for {
		if tok.WaitTimeout(poll) {
			return tok.Error()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return errStopped
		default:
		}
	}
}

// TopicFor returns the concrete publish topic for deviceID under a
// subscription filter such as "devices/+/sensor_data".
func TopicFor(filter, deviceID string) string {
	if strings.Contains(filter, "+") {
		return strings.Replace(filter, "+", deviceID, 1)
	}
	if strings.HasSuffix(filter, "#") {
		return strings.TrimSuffix(filter, "#") + deviceID
	}
	return filter
}

// deviceFromTopic extracts the segment of topic matched by the first
// single-level wildcard of filter. It returns "" when there is none.
func deviceFromTopic(filter, topic string) string {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	for i, seg := range fs {
		if i >= len(ts) {
			return ""
		}
		if seg == "+" {
			return ts[i]
		}
		if seg == "#" {
			return ""
		}
	}
	return ""
}
