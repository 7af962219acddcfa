// Package config loads declarative agent definitions from YAML and builds
// them into runnable loops and supervisors. Tool implementations cannot come
// from YAML; callers inject registries by agent name at build time.
package config
