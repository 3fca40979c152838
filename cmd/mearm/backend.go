package main

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gwillem/mearm/pkg/actuation"
	"github.com/gwillem/mearm/pkg/control"
	"github.com/gwillem/mearm/pkg/obs"
	"github.com/gwillem/mearm/pkg/regbus"
	"github.com/gwillem/mearm/pkg/robot"
)

// openBackend opens the hardware named by cfg.Transport. With --sim an arm
// on the register bus talks to a simulated controller and every other arm
// runs on in-memory channels.
func openBackend(cfg *robot.Config, logger *zap.SugaredLogger, metrics *obs.Metrics) (control.Backend, error) {
	switch {
	case cfg.Transport == robot.TransportI2C:
		return openRegisterBackend(cfg, logger, metrics)
	case opts.Sim || cfg.Transport == robot.TransportSim:
		return openArmBackend(cfg, actuation.NewMemory(), logger, metrics)
	}

	out, err := openChannel(cfg, logger)
	if err != nil {
		return nil, err
	}
	return openArmBackend(cfg, out, logger, metrics)
}

func channels(cfg *robot.Config) []int {
	var chs []int
	for _, name := range robot.AllJoints() {
		chs = append(chs, cfg.Joints.Get(name).Channel)
	}
	return chs
}

func openChannel(cfg *robot.Config, logger *zap.SugaredLogger) (robot.ActuationChannel, error) {
	switch cfg.Transport {
	case robot.TransportGPIO:
		g, err := actuation.OpenGPIO(channels(cfg), logger)
		if err != nil {
			return nil, err
		}
		return g, nil
	case robot.TransportPCA9685:
		p, err := actuation.OpenPCA9685(cfg.PCA9685.Bus, cfg.PCA9685.Address, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case robot.TransportFeetech:
		f, err := actuation.OpenFeetech(actuation.FeetechConfig{
			Port:     cfg.Feetech.Port,
			BaudRate: cfg.Feetech.BaudRate,
			IDs:      channels(cfg),
		}, logger)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	return nil, errors.Errorf("unknown transport %q", cfg.Transport)
}

// openArmBackend never homes: the session does that once it holds the lease.
func openArmBackend(cfg *robot.Config, out robot.ActuationChannel, logger *zap.SugaredLogger, metrics *obs.Metrics) (control.Backend, error) {
	armCfg := cfg.Arm()
	armCfg.HomeOnStart = false
	arm, err := robot.NewArm(out, armCfg, robot.WithLogger(logger), robot.WithMetrics(metrics))
	if err != nil {
		if c, ok := out.(interface{ Close() error }); ok {
			_ = c.Close()
		}
		return nil, err
	}
	return control.NewArmBackend(arm), nil
}

func openRegisterBackend(cfg *robot.Config, logger *zap.SugaredLogger, metrics *obs.Metrics) (control.Backend, error) {
	var bus regbus.Bus
	if opts.Sim {
		bus = regbus.NewSimDevice(cfg.Bus.Address, cfg.Joints)
	} else {
		b, err := regbus.OpenI2C(cfg.Bus.Name)
		if err != nil {
			return nil, err
		}
		bus = b
	}

	client := regbus.NewClient(bus, regbus.Config{
		Address:   cfg.Bus.Address,
		Settle:    cfg.Bus.Settle(),
		TxTimeout: cfg.Bus.Timeout(),
		Logger:    logger,
		Metrics:   metrics,
	})
	return control.NewRegisterBackend(client, cfg.Joints, logger), nil
}
