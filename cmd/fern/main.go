package main

import "github.com/Ramsey-B/fern/cmd/fern/cmd"

var version = "dev"

func main() {
	cmd.Execute(version)
}
