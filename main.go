package main

import "github.com/vkolb/waldb/cmd"

func main() {
	cmd.Execute()
}
