// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config provides configuration management for xgrab.
//
// Process configuration (AppConfig) is resolved with precedence
// ENV > File > Defaults and may be hot-reloaded through a Holder. Operator
// settings that the UI edits at runtime live in the kv store (Settings).
package config
