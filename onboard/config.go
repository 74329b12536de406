package onboard

import (
	"time"

	"github.com/Jak3Gil/Melvin-Research/onboard/l91"
)

// BridgeConfig is the yaml deployment description: which CAN interface to
// listen on, where the L91 adapter lives and which motors exist. Motor ids
// are configuration, not code; the firmware's 0x0C..0x0E set is just the
// current robot.
type BridgeConfig struct {
	Version int `yaml:"version"`

	CAN struct {
		Interface string `yaml:"interface"`
		PollMs    int    `yaml:"poll_ms"`
	} `yaml:"can"`

	Serial struct {
		Port string `yaml:"port"`
		Baud int    `yaml:"baud"`
	} `yaml:"serial"`

	Motors []MotorConfig `yaml:"motors"`

	Settle SettleConfig `yaml:"settle"`
}

type MotorConfig struct {
	Name string `yaml:"name"`
	ID   uint8  `yaml:"id"`
}

// SettleConfig overrides the post-command delays in milliseconds. Zero
// fields keep the firmware defaults.
type SettleConfig struct {
	WriteMs      int `yaml:"write_ms"`
	ActivateMs   int `yaml:"activate_ms"`
	DeactivateMs int `yaml:"deactivate_ms"`
	LoadParamsMs int `yaml:"load_params_ms"`
}

// Durations merges the overrides onto l91.DefaultSettle.
func (s SettleConfig) Durations() l91.Settle {
	settle := l91.DefaultSettle()
	if s.WriteMs > 0 {
		settle.Write = time.Duration(s.WriteMs) * time.Millisecond
	}
	if s.ActivateMs > 0 {
		settle.Activate = time.Duration(s.ActivateMs) * time.Millisecond
	}
	if s.DeactivateMs > 0 {
		settle.Deactivate = time.Duration(s.DeactivateMs) * time.Millisecond
	}
	if s.LoadParamsMs > 0 {
		settle.LoadParams = time.Duration(s.LoadParamsMs) * time.Millisecond
	}
	return settle
}

// PollTimeout is the bounded wait for a single bus receive per loop cycle.
func (c BridgeConfig) PollTimeout() time.Duration {
	if c.CAN.PollMs > 0 {
		return time.Duration(c.CAN.PollMs) * time.Millisecond
	}
	return 10 * time.Millisecond
}
