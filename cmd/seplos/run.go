package main

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"
	"github.com/tetragramaton/seplos-go/internal/api"
	"github.com/tetragramaton/seplos-go/internal/bridge"
	mqttClient "github.com/tetragramaton/seplos-go/internal/client/mqtt"
	"github.com/tetragramaton/seplos-go/internal/console"
	"github.com/tetragramaton/seplos-go/internal/ha"
	mqttIface "github.com/tetragramaton/seplos-go/internal/interface/mqtt"
	"golang.org/x/sync/errgroup"
)

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll the BMS and mirror it to MQTT and HTTP until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, cleanup, err := opts.app(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			return serve(cmd.Context(), a)
		},
	}
}

func serve(ctx context.Context, a *App) error {
	cfg := a.Config
	g, ctx := errgroup.WithContext(ctx)

	if cfg.MQTT.Enabled {
		battery := ha.Battery{
			ID:              cfg.MQTT.BatteryID,
			Prefix:          cfg.MQTT.Prefix,
			DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
			Version:         version,
		}
		br := bridge.New(bridge.Config{
			Battery:        battery,
			RepublishEvery: cfg.MQTT.RepublishEvery,
			QoS:            cfg.MQTT.QoS,
		}, a.Service, a.Log)

		client, err := mqttClient.NewClient(mqttClient.Config{
			BrokerURL:   cfg.MQTT.URL,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TLS:         cfg.MQTT.TLS,
			WillTopic:   battery.AvailabilityTopic(),
			WillPayload: ha.Offline,
			OnConnect:   br.OnConnect,
		}, a.Log)
		if err != nil {
			return err
		}
		defer func() {
			err := client.PublishEvent(mqttIface.Message{
				Topic:   battery.AvailabilityTopic(),
				Payload: []byte(ha.Offline),
				QoS:     1,
				Retain:  true,
			})
			if err != nil {
				a.Log.WithError(err).Warn("publish offline")
			}
			client.Close(250)
		}()
		g.Go(func() error { return br.Run(ctx) })
	}

	if cfg.HTTP.Enabled {
		var history api.History
		if a.Journal != nil {
			history = a.Journal
		}
		srv := api.New(cfg.HTTP.Listen, a.Service, history, a.Registry, a.Log)
		g.Go(func() error { return srv.Run(ctx) })
	}

	g.Go(func() error { return a.Service.Run(ctx) })

	a.Log.WithField("driver", cfg.Serial.Driver).Info("seplos running")
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newConsoleCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive terminal view with parameter editing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, cleanup, err := opts.app(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			if a.Config.Log.File == "" {
				a.Log.SetOutput(io.Discard)
			}

			go a.Service.Run(ctx)
			err = console.Run(ctx, a.Service)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
