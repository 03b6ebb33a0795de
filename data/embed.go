package data

import "embed"

var (
	//go:embed clients.json
	Clients embed.FS
)
