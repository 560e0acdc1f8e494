package client

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jsp-lqk/metapipe-redis/internal"
	"github.com/jsp-lqk/metapipe-redis/internal/resp"
)

// Options configures a Connection. It can be filled in code, from the
// environment with OptionsFromEnv or from a yaml file with LoadOptions.
type Options struct {
	Address  string `envconfig:"ADDRESS" default:"127.0.0.1:6379" yaml:"address"`
	Password string `envconfig:"PASSWORD" yaml:"password"`
	DB       int    `envconfig:"DB" yaml:"db"`

	// MaxWaitingHandlers bounds the requests waiting for a reply. Requests
	// beyond it fail with ErrQueueFull. 0 means unbounded.
	MaxWaitingHandlers int `envconfig:"MAX_WAITING_HANDLERS" yaml:"max-waiting-handlers"`

	DialTimeout    time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s" yaml:"dial-timeout"`
	ConnectRetries int           `envconfig:"CONNECT_RETRIES" default:"3" yaml:"connect-retries"`
	CloseTimeout   time.Duration `envconfig:"CLOSE_TIMEOUT" default:"1s" yaml:"close-timeout"`
	// HeartbeatInterval enables a periodic PING when positive
	HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" yaml:"heartbeat-interval"`

	ReadBufferSize int   `envconfig:"READ_BUFFER_SIZE" default:"16384" yaml:"read-buffer-size"`
	MaxBulkLength  int64 `envconfig:"MAX_BULK_LENGTH" default:"536870912" yaml:"max-bulk-length"`

	Logger  *zap.Logger `ignored:"true" yaml:"-"`
	Metrics *Metrics    `ignored:"true" yaml:"-"`
}

// DefaultOptions returns the options used for unset fields
func DefaultOptions() Options {
	return Options{
		Address:        "127.0.0.1:6379",
		DialTimeout:    5 * time.Second,
		ConnectRetries: 3,
		CloseTimeout:   time.Second,
		ReadBufferSize: 16 * 1024,
		MaxBulkLength:  resp.DefaultMaxBulkLength,
	}
}

// OptionsFromEnv reads options from environment variables named
// PREFIX_ADDRESS, PREFIX_MAX_WAITING_HANDLERS and so on
func OptionsFromEnv(prefix string) (Options, error) {
	var opts Options
	if err := envconfig.Process(prefix, &opts); err != nil {
		return Options{}, fmt.Errorf("read options from environment: %w", err)
	}
	return opts, opts.Validate()
}

// LoadOptions reads options from a yaml file. Missing keys keep their
// default value.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, err
	}
	opts := DefaultOptions()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return opts, opts.Validate()
}

func (o Options) Validate() error {
	var err error
	if o.Address == "" {
		err = multierr.Append(err, errors.New("address is required"))
	}
	if o.MaxWaitingHandlers < 0 {
		err = multierr.Append(err, fmt.Errorf("max waiting handlers must not be negative: %d", o.MaxWaitingHandlers))
	}
	if o.ConnectRetries < 0 {
		err = multierr.Append(err, fmt.Errorf("connect retries must not be negative: %d", o.ConnectRetries))
	}
	if o.DB < 0 {
		err = multierr.Append(err, fmt.Errorf("db must not be negative: %d", o.DB))
	}
	if o.ReadBufferSize < 0 || o.MaxBulkLength < 0 {
		err = multierr.Append(err, errors.New("buffer sizes must not be negative"))
	}
	if err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}

// withDefaults fills zero sizes and timeouts. ConnectRetries and
// MaxWaitingHandlers are meaningful at zero and are kept.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.DialTimeout <= 0 {
		o.DialTimeout = d.DialTimeout
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = d.CloseTimeout
	}
	if o.ReadBufferSize == 0 {
		o.ReadBufferSize = d.ReadBufferSize
	}
	if o.MaxBulkLength == 0 {
		o.MaxBulkLength = d.MaxBulkLength
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func (o Options) target() internal.ConnectionTarget {
	return internal.ConnectionTarget{
		Address:           o.Address,
		MaxWaiting:        o.MaxWaitingHandlers,
		ReadBufferSize:    o.ReadBufferSize,
		MaxBulkLength:     o.MaxBulkLength,
		CloseTimeout:      o.CloseTimeout,
		HeartbeatInterval: o.HeartbeatInterval,
		Logger:            o.Logger,
		Observer:          o.Metrics.observer(o.Address),
	}
}

// handshake returns the commands sent before the connection is Ready
func (o Options) handshake() []Command {
	var cmds []Command
	if o.Password != "" {
		cmds = append(cmds, Cmd(AUTH, o.Password))
	}
	if o.DB != 0 {
		cmds = append(cmds, Cmd(SELECT, o.DB))
	}
	return cmds
}
