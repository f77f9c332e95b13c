package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"
)

var (
	mqttBroker   string
	mqttClientID string
)

var mqttCmd = &cobra.Command{
	Use:   "mqtt",
	Short: "Publish readings to rainfall/<sensor_id>/data",
	RunE:  runMQTT,
}

func init() {
	mqttCmd.Flags().StringVar(&mqttBroker, "broker", "tcp://test.mosquitto.org:1883", "MQTT broker URL")
	mqttCmd.Flags().StringVar(&mqttClientID, "client-id", "rainfall-simulator", "MQTT client id")
	rootCmd.AddCommand(mqttCmd)
}

func runMQTT(cmd *cobra.Command, _ []string) error {
	opts := paho.NewClientOptions().
		AddBroker(mqttBroker).
		SetClientID(mqttClientID).
		SetAutoReconnect(true)
	client := paho.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return errors.New("timed out connecting to broker")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect %s: %w", mqttBroker, err)
	}
	defer client.Disconnect(250)

	return runCycles(cmd, func(_ context.Context, r simulatedReading) error {
		payload, err := json.Marshal(r.mqttPayload())
		if err != nil {
			return err
		}
		t := client.Publish(r.topic(), 0, false, payload)
		if !t.WaitTimeout(10 * time.Second) {
			return errors.New("publish timed out")
		}
		return t.Error()
	})
}
