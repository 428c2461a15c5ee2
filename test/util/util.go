// Package util provides helper functions shared across integration tests.
//
// StartMosquitto launches a disposable Mosquitto broker in a Docker container
// with a plain MQTT and a WebSocket listener. It returns both broker URLs and
// a cleanup function.
//
// WaitForMetric polls a Prometheus metrics endpoint until the desired metric
// appears in the output.
package util

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// Default timeouts for helper operations
	MosquittoReadyTimeout = 5 * time.Second
	MetricTimeout         = 5 * time.Second

	pollInterval = 50 * time.Millisecond
)

// Broker holds the endpoints of a running test broker.
type Broker struct {
	TCP string
	WS  string
}

// WaitForMetric polls the given metrics URL until the provided substring is
// found in the output or the context is done.
func WaitForMetric(ctx context.Context, metricsURL, substr string) error {
	for {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, metricsURL, nil)
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			body, rerr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if rerr != nil {
				return fmt.Errorf("read metrics body: %w", rerr)
			}
			if strings.Contains(string(body), substr) {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("metric %q not found: %w", substr, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// StartMosquitto launches a temporary Mosquitto broker inside a Docker
// container and returns its endpoints along with a cleanup function.
func StartMosquitto(ctx context.Context) (Broker, func(), error) {
	conf := `listener 1883
listener 9001
protocol websockets
allow_anonymous true
persistence false
log_dest stdout
log_type error
log_type warning
log_type notice
connection_messages true
`

	dir, err := os.MkdirTemp("", "mosq")
	if err != nil {
		return Broker{}, nil, err
	}
	path := filepath.Join(dir, "mosquitto.conf")
	if err := os.WriteFile(path, []byte(conf), 0644); err != nil {
		_ = os.RemoveAll(dir)
		return Broker{}, nil, err
	}

	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp", "9001/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{
			{
				HostFilePath:      path,
				ContainerFilePath: "/mosquitto/config/mosquitto.conf",
				FileMode:          0644,
			},
		},
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		_ = os.RemoveAll(dir)
		return Broker{}, nil, err
	}

	cleanup := func() {
		_ = cont.Terminate(context.Background())
		_ = os.RemoveAll(dir)
	}

	host, err := cont.Host(ctx)
	if err != nil {
		cleanup()
		return Broker{}, nil, err
	}
	tcpPort, err := cont.MappedPort(ctx, "1883")
	if err != nil {
		cleanup()
		return Broker{}, nil, err
	}
	wsPort, err := cont.MappedPort(ctx, "9001")
	if err != nil {
		cleanup()
		return Broker{}, nil, err
	}
	b := Broker{
		TCP: fmt.Sprintf("tcp://%s:%s", host, tcpPort.Port()),
		WS:  fmt.Sprintf("ws://%s:%s", host, wsPort.Port()),
	}

	waitCtx, cancel := context.WithTimeout(ctx, MosquittoReadyTimeout)
	defer cancel()
	if err := waitForMQTTReady(waitCtx, b.TCP); err != nil {
		cleanup()
		return Broker{}, nil, err
	}

	return b, cleanup, nil
}

// Capture subscribes to topic and returns a channel of received payloads.
func Capture(broker, clientID, topic string) (<-chan string, func(), error) {
	ch := make(chan string, 16)
	cli := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID(clientID))
	if t := cli.Connect(); !t.WaitTimeout(MosquittoReadyTimeout) || t.Error() != nil {
		return nil, nil, fmt.Errorf("capture connect: %v", t.Error())
	}
	tok := cli.Subscribe(topic, 1, func(_ paho.Client, m paho.Message) {
		select {
		case ch <- string(m.Payload()):
		default:
		}
	})
	if !tok.WaitTimeout(MosquittoReadyTimeout) || tok.Error() != nil {
		cli.Disconnect(100)
		return nil, nil, fmt.Errorf("capture subscribe: %v", tok.Error())
	}
	return ch, func() { cli.Disconnect(100) }, nil
}

// Publish sends one retained-less message on topic.
func Publish(broker, clientID, topic, payload string) error {
	cli := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID(clientID))
	if t := cli.Connect(); !t.WaitTimeout(MosquittoReadyTimeout) || t.Error() != nil {
		return fmt.Errorf("publish connect: %v", t.Error())
	}
	defer cli.Disconnect(100)
	t := cli.Publish(topic, 1, false, payload)
	if !t.WaitTimeout(MosquittoReadyTimeout) {
		return fmt.Errorf("publish timeout")
	}
	return t.Error()
}

func waitForMQTTReady(ctx context.Context, broker string) error {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("probe")
	for {
		cli := paho.NewClient(opts)
		token := cli.Connect()
		token.Wait()
		if token.Error() == nil {
			cli.Disconnect(100)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
