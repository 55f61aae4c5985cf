package ioimage

import (
	"context"

	"github.com/shirou/gopsutil/host"

	"github.com/trustplatform/trustrun/internal/value"
)

// Health tags a driver's reported operating condition.
type Health uint8

const (
	HealthOk Health = iota
	HealthDegraded
	HealthFaulted
)

func (h Health) String() string {
	switch h {
	case HealthOk:
		return "ok"
	case HealthDegraded:
		return "degraded"
	case HealthFaulted:
		return "faulted"
	}
	return "unknown"
}

// ErrorPolicy tags how a driver-reported error is escalated, per the
// per-config policy of spec.md §4.4.
type ErrorPolicy uint8

const (
	PolicyFault ErrorPolicy = iota
	PolicyWarn
	PolicyIgnore
)

// Driver is one registered fieldbus/simulated I/O driver. ReadInputs runs
// before evaluation each cycle, WriteOutputs after, in registration order.
type Driver interface {
	Name() string
	ReadInputs(ctx context.Context, buf []byte) error
	WriteOutputs(ctx context.Context, buf []byte) error
}

// DriverStatus is what the core publishes to an optional status sink after
// every driver invocation.
type DriverStatus struct {
	Driver string
	Health Health
	Err    error
}

// StatusSink receives driver health transitions; the control plane's
// io-state snapshot endpoint reads the most recent status per driver.
type StatusSink interface {
	Publish(DriverStatus)
}

// RegisteredDriver pairs a Driver with the policy that governs how its
// errors escalate.
type RegisteredDriver struct {
	Driver Driver
	Policy ErrorPolicy
}

// RunDriverReads invokes driver.ReadInputs(&image.inputs) for every
// registered driver in registration order, classifying any error per its
// policy. A PolicyFault error is returned to the caller (the runtime
// escalates it to a cycle fault); PolicyWarn logs via the sink and
// continues; PolicyIgnore is silent.
func RunDriverReads(ctx context.Context, img *ProcessImage, drivers []RegisteredDriver, sink StatusSink) error {
	for _, rd := range drivers {
		err := rd.Driver.ReadInputs(ctx, img.Input)
		if err := classify(rd, err, sink); err != nil {
			return err
		}
	}
	return nil
}

// RunDriverWrites invokes driver.WriteOutputs(&image.outputs) for every
// registered driver in registration order, with the same error-policy
// classification as RunDriverReads.
func RunDriverWrites(ctx context.Context, img *ProcessImage, drivers []RegisteredDriver, sink StatusSink) error {
	for _, rd := range drivers {
		err := rd.Driver.WriteOutputs(ctx, img.Output)
		if err := classify(rd, err, sink); err != nil {
			return err
		}
	}
	return nil
}

func classify(rd RegisteredDriver, err error, sink StatusSink) error {
	if err == nil {
		if sink != nil {
			sink.Publish(DriverStatus{Driver: rd.Driver.Name(), Health: HealthOk})
		}
		return nil
	}
	switch rd.Policy {
	case PolicyFault:
		if sink != nil {
			sink.Publish(DriverStatus{Driver: rd.Driver.Name(), Health: HealthFaulted, Err: err})
		}
		return value.WrapFault(value.FaultIoDriver, err, "driver %q faulted", rd.Driver.Name())
	case PolicyWarn:
		if sink != nil {
			sink.Publish(DriverStatus{Driver: rd.Driver.Name(), Health: HealthDegraded, Err: err})
		}
		return nil
	case PolicyIgnore:
		if sink != nil {
			sink.Publish(DriverStatus{Driver: rd.Driver.Name(), Health: HealthOk, Err: err})
		}
		return nil
	}
	return nil
}

// HostHealth is a point-in-time snapshot of host CPU/memory, sampled into
// the metadata snapshot's host-health section (internal/metrics calls this,
// not the hot I/O path — ioimage only defines the shape so driver status and
// host health travel together over the control plane).
type HostHealth struct {
	Uptime     uint64
	Procs      uint64
	OS         string
	Platform   string
	KernelArch string
}

// SampleHostHealth reads host.Info() once; callers on the metrics tick
// cache/rate-limit calls themselves, since gopsutil's Info() does several
// syscalls/proc-reads.
func SampleHostHealth(ctx context.Context) (HostHealth, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return HostHealth{}, value.WrapFault(value.FaultIoDriver, err, "host health sample failed")
	}
	return HostHealth{
		Uptime:     info.Uptime,
		Procs:      info.Procs,
		OS:         info.OS,
		Platform:   info.Platform,
		KernelArch: info.KernelArch,
	}, nil
}
