// Package config loads litterbox configuration from TOML files.
//
// Configuration is merged from three layers, later layers winning:
//
//  1. Defaults derived from the working directory (project slug)
//  2. .litterbox.toml — the checked-in project configuration
//  3. .litterbox.local.toml — an optional, gitignored local overlay
//
// # File Format
//
//	[project]
//	slug = "myproject"        # optional, defaults to directory basename
//
//	[docker]
//	image = "node:22-slim"
//	setup-command = "npm install"
//
//	[[ports]]
//	name = "web"
//	target = 8080
//
// Unknown keys are tolerated. Forwarded port names are slugified and must
// be unique after slugification because each becomes a
// LITTERBOX_FWD_PORT_* environment variable inside the container.
package config
