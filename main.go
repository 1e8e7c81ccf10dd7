package main

import "github.com/tupyy/stream-heartbeat/cmd"

func main() {
	cmd.Execute()
}
