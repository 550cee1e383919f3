//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/sirupsen/logrus"
	"github.com/tetragramaton/seplos-go/internal/bms"
	"github.com/tetragramaton/seplos-go/internal/config"
)

func InitApp(cfg *config.Config, log *logrus.Logger) (*App, func(), error) {
	wire.Build(
		wire.Bind(new(logrus.FieldLogger), new(*logrus.Logger)),
		ProvideRegisterMap,
		ProvideTransport,
		ProvideRegistry,
		ProvideMetrics,
		ProvideModbusClient,
		ProvideScheduler,
		ProvideStore,
		ProvidePoller,
		ProvideJournal,
		ProvideWriter,
		bms.New,
		NewApp,
	)
	return nil, nil, nil // wire will generate the result
}
