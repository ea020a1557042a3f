package main

import (
	"bmod-manager/cmd"
	"bmod-manager/logger"

	_ "go.uber.org/automaxprocs/maxprocs"
)

func main() {
	defer logger.Sync() // Ensure logs are flushed on exit
	cmd.Execute()
}
