package main

import "github.com/oshokin/jail-release/cmd/jail-release/cmd"

func main() {
	cmd.Execute()
}
