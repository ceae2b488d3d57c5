package main

import "github.com/oshokin/persistent-last-changed/cmd/last-changed/cmd"

func main() {
	cmd.Execute()
}
