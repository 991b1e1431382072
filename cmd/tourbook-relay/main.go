package main

import "github.com/mytourbook/tourbook-relay/cmd/tourbook-relay/cmd"

func main() {
	cmd.Execute()
}
