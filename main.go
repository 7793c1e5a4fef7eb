package main

import "github.com/kozaktomas/face-queue/cmd"

func main() {
	cmd.Execute()
}
