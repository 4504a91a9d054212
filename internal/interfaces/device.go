package interfaces

import (
	"context"
	"time"
)

// DeviceManager answers whether the ZT-100 control panel is reachable
type DeviceManager interface {
	HealthCheck(ctx context.Context, endpoint string) error
	Status(ctx context.Context) (DeviceStatus, error)
	WaitForDevice(ctx context.Context) error
}

// DeviceStatus represents the current reachability of the device control panel
type DeviceStatus struct {
	URL        string
	Reachable  bool
	StatusCode int
	Latency    time.Duration
}
