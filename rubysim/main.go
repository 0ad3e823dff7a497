// Package main is the command line entry of the coherence simulator.
package main

import "github.com/sarchlab/rubysim/rubysim/cmd"

func main() {
	cmd.Execute()
}
