package status

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	api "github.com/oshokin/persistent-last-changed/internal/api/grpc/sensor"
	"github.com/oshokin/persistent-last-changed/internal/config"
	"github.com/oshokin/persistent-last-changed/internal/logger"
)

// Options configures the status query.
type Options struct {
	// ConfigPath to YAML settings file, used when ServerAddress is empty.
	ConfigPath string
	// ServerAddress overrides the gRPC address from config when specified.
	ServerAddress string
	// SensorID selects one sensor; empty lists all of them.
	SensorID string
}

// Run fetches the sensors and writes them to w as YAML.
func Run(ctx context.Context, opts *Options, w io.Writer) error {
	ctx = logger.WithName(ctx, "last-changed-status")

	address := opts.ServerAddress
	timeout := config.DefaultTimeout

	if address == "" {
		cfg, err := config.Load(opts.ConfigPath)
		if err != nil {
			return err
		}

		address = cfg.ListenAddress
		timeout = cfg.NATS.Timeout
	}

	client, err := api.Dial(ctx, address, api.WithCallTimeout(timeout))
	if err != nil {
		return err
	}

	defer func() {
		_ = client.Close()
	}()

	logger.DebugKV(ctx, "Querying sensors", "server_address", address, "sensor", opts.SensorID)

	var result map[string]any

	if opts.SensorID != "" {
		resp, err := client.GetSensor(ctx, opts.SensorID)
		if err != nil {
			return err
		}

		result = resp.AsMap()
	} else {
		resp, err := client.ListSensors(ctx)
		if err != nil {
			return err
		}

		result = resp.AsMap()
	}

	return write(w, result)
}

func write(w io.Writer, result map[string]any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)

	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("encode status: %w", err)
	}

	return encoder.Close()
}
