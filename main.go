// main.go - Application entry point
package main

import "hydromask/cmd"

func main() {
	cmd.Execute()
}
