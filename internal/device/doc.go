// Package device declares the Bluetooth Low Energy central abstractions used by
// the telemetry pipeline.
//
// The package is backend-agnostic:
//   - Central scans for advertisements and dials peripherals
//   - Peripheral exposes notification subscriptions and disconnect tracking
//   - Sentinel and structured errors shared by all backends
//
// The go-ble backend lives in the go-ble subpackage.
package device
