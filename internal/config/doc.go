// Package config defines the format-agnostic pipeline model and the Loader
// interface implemented by the JSON, YAML and HCL front ends.
//
// Every loader reduces its input to one cty object value and hands it to
// FromValue, so validation and setup-record semantics are shared.
package config
