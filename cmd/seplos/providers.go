package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/tetragramaton/seplos-go/internal/audit"
	"github.com/tetragramaton/seplos-go/internal/bms"
	"github.com/tetragramaton/seplos-go/internal/bus"
	modbusClient "github.com/tetragramaton/seplos-go/internal/client/modbus"
	"github.com/tetragramaton/seplos-go/internal/client/rtu"
	"github.com/tetragramaton/seplos-go/internal/client/serialport"
	"github.com/tetragramaton/seplos-go/internal/client/sim"
	"github.com/tetragramaton/seplos-go/internal/config"
	transportIface "github.com/tetragramaton/seplos-go/internal/interface/transport"
	"github.com/tetragramaton/seplos-go/internal/metrics"
	"github.com/tetragramaton/seplos-go/internal/poller"
	"github.com/tetragramaton/seplos-go/internal/register"
	"github.com/tetragramaton/seplos-go/internal/store"
	"github.com/tetragramaton/seplos-go/internal/write"
)

const queueSize = 16

// App is everything a command needs once the bus is wired.
type App struct {
	Config   *config.Config
	Log      *logrus.Logger
	Service  *bms.Service
	Registry *prometheus.Registry
	// Journal is nil when auditing is disabled.
	Journal *audit.Journal
}

func NewApp(cfg *config.Config, log *logrus.Logger, svc *bms.Service, reg *prometheus.Registry, j *audit.Journal) *App {
	return &App{Config: cfg, Log: log, Service: svc, Registry: reg, Journal: j}
}

func ProvideRegisterMap() (*register.Map, error) {
	return register.Seplos()
}

func ProvideTransport(cfg *config.Config, regs *register.Map, log logrus.FieldLogger) (transportIface.Transport, func(), error) {
	var tr transportIface.Transport
	switch cfg.Serial.Driver {
	case config.DriverSim:
		log.Warn("using a simulated BMS, no serial port is opened")
		tr = sim.NewSeplos(cfg.Modbus.SlaveID, regs, log, true)
	case config.DriverRTU:
		tr = rtu.NewHandler(rtu.Config{
			Port:      cfg.Serial.Port,
			Baud:      cfg.Serial.BaudRate,
			DataBits:  cfg.Serial.DataBits,
			Parity:    cfg.Serial.Parity,
			StopBits:  cfg.Serial.StopBits,
			SlaveID:   int(cfg.Modbus.SlaveID),
			TimeoutMs: int(cfg.Modbus.Timeout.Milliseconds()),
		}, log)
	default:
		tr = serialport.New(serialport.Config{
			Port:     cfg.Serial.Port,
			BaudRate: cfg.Serial.BaudRate,
			DataBits: cfg.Serial.DataBits,
			Parity:   cfg.Serial.Parity,
			StopBits: cfg.Serial.StopBits,
		}, log)
	}
	cleanup := func() {
		if err := tr.Close(); err != nil {
			log.WithError(err).Warn("close transport")
		}
	}
	return tr, cleanup, nil
}

func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func ProvideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

func ProvideModbusClient(cfg *config.Config, regs *register.Map, tr transportIface.Transport, log logrus.FieldLogger, m *metrics.Metrics) *modbusClient.Client {
	mc := modbusClient.DefaultConfig()
	mc.SlaveID = cfg.Modbus.SlaveID
	mc.ReadFunction = regs.Config().ReadFunction
	mc.WriteFunction = regs.Config().WriteFunction
	mc.Timeout = cfg.Modbus.Timeout
	mc.MaxRetries = cfg.Modbus.MaxRetries
	if cfg.Modbus.Backoff > 0 {
		mc.Backoff.Initial = cfg.Modbus.Backoff
	}
	if cfg.Modbus.BackoffMax > 0 {
		mc.Backoff.Max = cfg.Modbus.BackoffMax
	}
	return modbusClient.NewClient(tr, mc, log, m)
}

func ProvideScheduler(c *modbusClient.Client, log logrus.FieldLogger, m *metrics.Metrics) *bus.Scheduler {
	return bus.New(c, log, m, queueSize)
}

func ProvideStore(cfg *config.Config) *store.Store {
	return store.New(cfg.Poll.Deadband)
}

func ProvidePoller(cfg *config.Config, regs *register.Map, st *store.Store, sched *bus.Scheduler, log logrus.FieldLogger, m *metrics.Metrics) *poller.Poller {
	return poller.New(poller.Config{Interval: cfg.Poll.Interval}, regs, st, sched, log, m)
}

func ProvideJournal(cfg *config.Config, log logrus.FieldLogger) (*audit.Journal, func(), error) {
	if !cfg.Audit.Enabled {
		return nil, func() {}, nil
	}
	j, err := audit.Open(cfg.Audit.Path)
	if err != nil {
		return nil, nil, err
	}
	log.WithField("path", cfg.Audit.Path).Debug("write journal open")
	return j, func() {
		if err := j.Close(); err != nil {
			log.WithError(err).Warn("close write journal")
		}
	}, nil
}

func ProvideWriter(cfg *config.Config, regs *register.Map, st *store.Store, sched *bus.Scheduler, j *audit.Journal, log logrus.FieldLogger, m *metrics.Metrics) *write.Coordinator {
	guard := write.Guard{Enabled: cfg.Write.Guard, MaxChange: cfg.Write.MaxChange}
	var journal write.Journal
	if j != nil {
		journal = j
	}
	return write.New(regs, st, sched, guard, journal, log, m)
}
