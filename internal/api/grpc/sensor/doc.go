// Package sensor implements the gRPC read API of the running sensors.
//
// The service is described by hand over protobuf well-known types, so no
// generated code is needed: GetSensor takes a StringValue with the sensor id
// and ListSensors takes Empty, both answer with a Struct. The package also
// provides a small client used by the status command.
package sensor
