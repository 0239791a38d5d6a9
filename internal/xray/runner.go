package xray

import (
	"encoding/json"
	"fmt"
	"net"
	"os"

	"tunnelcore/internal/logger"

	"github.com/xtls/xray-core/core"
	"github.com/xtls/xray-core/infra/conf"

	// Registers every protocol and transport with core.New.
	_ "github.com/xtls/xray-core/main/distro/all"
)

// Start compiles an engine document and runs it in-process. The caller owns
// the returned instance and must Close it.
func Start(doc string) (instance *core.Instance, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Errorf("Recovered from engine panic: %v", r)
			err = fmt.Errorf("engine panic: %v", r)
			if instance != nil {
				instance.Close()
				instance = nil
			}
		}
	}()

	pb, err := compile(doc)
	if err != nil {
		return nil, err
	}

	instance, err = core.New(pb)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine instance: %w", err)
	}
	if err := instance.Start(); err != nil {
		instance.Close()
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}

	logger.Log.Debugf("Engine instance started")
	return instance, nil
}

// compile turns an engine document into xray-core's protobuf config.
func compile(doc string) (*core.Config, error) {
	var cfg conf.Config
	if err := json.Unmarshal([]byte(doc), &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	var pb *core.Config
	err := silenced(func() error {
		var buildErr error
		pb, buildErr = cfg.Build()
		return buildErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return pb, nil
}

// FreePort asks the kernel for an unused loopback TCP port. The port is
// released before returning, so the engine can bind it right after.
func FreePort() (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(InboundHost, "0"))
	if err != nil {
		return 0, fmt.Errorf("failed to allocate port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// silenced runs fn with the process stdout and stderr pointed at /dev/null.
// xray-core prints config warnings straight to them.
func silenced(fn func() error) error {
	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return fn()
	}
	defer devNull.Close()

	stdout, stderr := os.Stdout, os.Stderr
	os.Stdout, os.Stderr = devNull, devNull
	defer func() {
		os.Stdout, os.Stderr = stdout, stderr
	}()
	return fn()
}
