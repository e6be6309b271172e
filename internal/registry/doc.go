// Package registry maps step type names to the constructors that build
// them. A Registry is assembled once from modules plus config-declared
// aliases and is read-only afterwards, so one instance can back any number
// of pipeline runs.
package registry
