// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for ginto-sandboxd.
//
// Configuration comes from a single file named either by the
// GINTO_SANDBOXD_CONFIG environment variable (via [Load]) or by a
// --config flag (via [LoadFile]). When neither names a file the
// daemon runs on [Default], whose values match the historical
// deployment: socket at /run/ginto-sandboxd.sock, logs under
// /var/log/ginto-sandboxd, allowed host roots /home, /var and /srv.
// There is no automatic file search.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${LOG_DIR}, ${STATE_DIR} and ${VAR:-default} patterns are
// expanded. No environment variable overrides a config value directly.
//
// [Config.Validate] reports every problem at once, joined with
// errors.Join.
//
// This package depends on no other packages in this module.
package config
