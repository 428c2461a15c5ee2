// Package infra contains technical adapters such as the MQTT session
// manager, metrics exporters and the legacy HTTP client. These packages
// should depend only on the interfaces defined in the core packages.
package infra
